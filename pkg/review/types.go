// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package review classifies persona review responses into a canonical
// pass/fail/unknown status, normalizes free-form review failures into
// structured blocking issues, and parses/normalizes the project manager's
// triage decision over those failures.
package review

// Status is the canonical outcome of a review-type persona response.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusUnknown Status = "unknown"
)

// Result is the {status, details, payload} triple a review-type persona
// response is interpreted into.
type Result struct {
	Status  Status
	Details string
	Payload map[string]interface{}

	// Downgraded records that a reported pass was overridden to fail (the
	// QA zero-tests-executed rule). Kept separate from Details so callers
	// can log the override distinctly from the persona's own wording.
	Downgraded bool
}

// Severity is a blocking issue's reported severity.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// BlockingIssue is one normalized problem raised by a failed review.
type BlockingIssue struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Labels      []string `json:"labels"`
	Blocking    bool     `json:"blocking"`
}

// NormalizedReview is a review persona's free-form result mapped into the
// shape the PM-evaluation and task-creation stages operate on.
type NormalizedReview struct {
	ReviewType        string          `json:"reviewType"`
	BlockingIssues    []BlockingIssue `json:"blockingIssues"`
	HasBlockingIssues bool            `json:"hasBlockingIssues"`
}

// Priority is a follow-up task's normalized urgency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Decision is the PM persona's triage verdict.
type Decision string

const (
	DecisionImmediateFix Decision = "immediate_fix"
	DecisionDefer        Decision = "defer"
)

// Stage is the PM persona's optional assessment of project maturity.
type Stage string

const (
	StageEarly      Stage = "early"
	StageBeta       Stage = "beta"
	StageProduction Stage = "production"
)

// FollowUpTask is one task the PM decision proposes creating.
type FollowUpTask struct {
	Title           string                 `json:"title"`
	Description     string                 `json:"description"`
	Priority        Priority               `json:"priority"`
	MilestoneID     string                 `json:"milestone_id,omitempty"`
	MilestoneSlug   string                 `json:"milestone_slug,omitempty"`
	AssigneePersona string                 `json:"assignee_persona,omitempty"`
	Labels          []string               `json:"labels,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

// PMDecision is the parsed and normalized output of the project-manager
// persona's evaluation of a normalized review failure.
type PMDecision struct {
	Decision        Decision       `json:"decision"`
	ImmediateIssues []string       `json:"immediate_issues"`
	DeferredIssues  []string       `json:"deferred_issues"`
	FollowUpTasks   []FollowUpTask `json:"follow_up_tasks"`
	Reasoning       string         `json:"reasoning"`
	DetectedStage   Stage          `json:"detected_stage,omitempty"`

	// Warnings accumulates non-fatal normalization notes (decision
	// defaulted, immediate_fix downgraded) that the caller should log
	// alongside the decision. A malformed follow_up_tasks entry is skipped
	// without a warning.
	Warnings []string `json:"-"`
}
