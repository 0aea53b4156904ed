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

package steps

import (
	"context"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/review"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// RegisterReviewFailureNormalize adds the "review_failure_normalize" step
// type: turns a review persona's free-form failure text and payload into a
// NormalizedReview of structured blocking issues. Config:
//
//	review_type (string, required)
//	details (string) - the persona's free-form failure explanation.
//	payload (map, optional) - structured issue data, when the persona
//	  supplied it alongside prose.
func RegisterReviewFailureNormalize(reg *workflow.Registry, deps Deps) {
	reg.Register("review_failure_normalize", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		reviewType := configString(cfg, "review_type", "")
		if reviewType == "" {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "review_type", Message: "review_failure_normalize requires review_type"}
		}
		details := configString(cfg, "details", "")
		payload := configMap(cfg, "payload")

		normalized := review.NormalizeFailure(reviewType, details, payload)
		return workflow.StepOutput{Data: map[string]interface{}{
			"normalized_review":  normalized,
			"blocking_issues":    normalized.BlockingIssues,
			"has_blocking_issue": normalized.HasBlockingIssues,
		}}, nil
	})
}

// RegisterPMDecisionParse adds the "pm_decision_parse" step type: parses
// and normalizes the project manager persona's triage decision over a
// normalized review failure, accepting either the bare-string or
// structured-object response forms. Config:
//
//	pm_response (any, required) - the PM persona's raw result.
func RegisterPMDecisionParse(reg *workflow.Registry, deps Deps) {
	reg.Register("pm_decision_parse", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		raw, ok := cfg["pm_response"]
		if !ok {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "pm_response", Message: "pm_decision_parse requires pm_response"}
		}

		decision, err := review.ParsePMDecision(raw)
		if err != nil {
			return workflow.StepOutput{}, err
		}

		return workflow.StepOutput{Data: map[string]interface{}{
			"pm_decision":     decision,
			"decision":        string(decision.Decision),
			"follow_up_tasks": decision.FollowUpTasks,
			"warnings":        decision.Warnings,
		}}, nil
	})
}

// RegisterReviewFailureFilter adds the "review_failure_filter" step type:
// merges the PM decision's own follow-up tasks with any auto-generated
// follow-ups (e.g. from AnalysisTaskBuilderStep), dropping entries with no
// title and no description as unusable.
//
// Config:
//
//	follow_up_tasks ([]review.FollowUpTask or []map, optional)
//	auto_follow_up_tasks ([]review.FollowUpTask or []map, optional)
func RegisterReviewFailureFilter(reg *workflow.Registry, deps Deps) {
	reg.Register("review_failure_filter", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		tasks := followUpTasksFromConfig(cfg, "follow_up_tasks")
		tasks = append(tasks, followUpTasksFromConfig(cfg, "auto_follow_up_tasks")...)

		filtered := make([]review.FollowUpTask, 0, len(tasks))
		for _, t := range tasks {
			if t.Title == "" && t.Description == "" {
				continue
			}
			filtered = append(filtered, t)
		}

		return workflow.StepOutput{Data: map[string]interface{}{"follow_up_tasks": filtered}}, nil
	})
}

// followUpTasksFromConfig reads key out of cfg, accepting either an
// already-typed []review.FollowUpTask (set by an earlier in-process step,
// e.g. analysis_task_builder's output flowing straight through
// StepOutput.Data) or a []interface{} of map[string]interface{} (set by
// config YAML or a JSON-decoded persona payload).
func followUpTasksFromConfig(cfg map[string]interface{}, key string) []review.FollowUpTask {
	raw, ok := cfg[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []review.FollowUpTask:
		return v
	case []interface{}:
		out := make([]review.FollowUpTask, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			t := review.FollowUpTask{}
			t.Title, _ = m["title"].(string)
			t.Description, _ = m["description"].(string)
			t.Priority = review.NormalizePriority(stringOrEmpty(m["priority"]))
			t.MilestoneID, _ = m["milestone_id"].(string)
			t.MilestoneSlug, _ = m["milestone_slug"].(string)
			t.AssigneePersona, _ = m["assignee_persona"].(string)
			t.Labels = stringSliceFromAny(m["labels"])
			out = append(out, t)
		}
		return out
	default:
		return nil
	}
}

func stringOrEmpty(v interface{}) string {
	s, _ := v.(string)
	return s
}

// RegisterReviewFailureCoverage adds the "review_failure_coverage" step
// type: enforces that a QA-originated review failure's missing test
// coverage is actually addressed by the proposed follow-up tasks before
// the workflow is allowed to proceed past the review-failure sub-workflow.
// If the PM decision ignored a reported test-coverage gap the step aborts
// the workflow rather than returning a step error, since this represents a
// policy failure the coordinator must record as the terminal outcome, not
// a retryable step fault.
//
// Config:
//
//	normalized_review (review.NormalizedReview, required)
//	follow_up_tasks ([]review.FollowUpTask, required)
func RegisterReviewFailureCoverage(reg *workflow.Registry, deps Deps) {
	reg.Register("review_failure_coverage", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		normalized, ok := cfg["normalized_review"].(review.NormalizedReview)
		if !ok {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "normalized_review", Message: "review_failure_coverage requires normalized_review"}
		}
		tasks := followUpTasksFromConfig(cfg, "follow_up_tasks")

		if review.MissingTestCoverage(normalized) && !review.FollowUpAddressesTestCoverage(tasks) {
			wctx.Abort("review_failure_coverage", "PM decision did not address a reported missing-test-coverage finding")
			return workflow.StepOutput{Abort: true, Data: map[string]interface{}{
				"covered": false,
			}}, nil
		}

		allAddressed := review.EveryIssueAddressed(normalized.BlockingIssues, tasks)
		return workflow.StepOutput{Data: map[string]interface{}{
			"covered":     true,
			"every_issue": allAddressed,
			"task_count":  len(tasks),
		}}, nil
	})
}
