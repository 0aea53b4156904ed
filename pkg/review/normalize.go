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

package review

import (
	"fmt"
	"strings"
)

// NormalizeFailure maps a failed review's free-form payload into a
// NormalizedReview. payload is expected to optionally carry an "issues"
// array of objects; a payload without one still yields a single synthetic
// blocking issue built from details, so a review-failure-handling run
// always has at least one issue to route through PM evaluation.
func NormalizeFailure(reviewType, details string, payload map[string]interface{}) NormalizedReview {
	var issues []BlockingIssue

	if raw, ok := payload["issues"].([]interface{}); ok {
		for i, item := range raw {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			issues = append(issues, parseBlockingIssue(reviewType, i, m))
		}
	}

	if len(issues) == 0 {
		issues = append(issues, BlockingIssue{
			ID:          fmt.Sprintf("%s-0", reviewType),
			Title:       fmt.Sprintf("%s review reported a failure", strings.ToUpper(reviewType)),
			Description: details,
			Severity:    SeverityHigh,
			Labels:      []string{reviewType},
			Blocking:    true,
		})
	}

	return NormalizedReview{
		ReviewType:        reviewType,
		BlockingIssues:    issues,
		HasBlockingIssues: hasBlocking(issues),
	}
}

func parseBlockingIssue(reviewType string, index int, m map[string]interface{}) BlockingIssue {
	issue := BlockingIssue{
		ID:       fmt.Sprintf("%s-%d", reviewType, index),
		Severity: SeverityMedium,
		Blocking: true,
	}
	if s, ok := m["id"].(string); ok && s != "" {
		issue.ID = s
	}
	if s, ok := m["title"].(string); ok {
		issue.Title = s
	}
	if s, ok := m["description"].(string); ok {
		issue.Description = s
	}
	if s, ok := m["severity"].(string); ok {
		switch Severity(strings.ToLower(s)) {
		case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
			issue.Severity = Severity(strings.ToLower(s))
		}
	}
	issue.Labels = stringSlice(m["labels"])
	if b, ok := m["blocking"].(bool); ok {
		issue.Blocking = b
	}
	return issue
}

func hasBlocking(issues []BlockingIssue) bool {
	for _, i := range issues {
		if i.Blocking {
			return true
		}
	}
	return false
}

// MissingTestCoverage reports whether review is a QA failure whose
// reported problem was a missing test harness/infrastructure rather than
// failing tests — the condition that forces an abort if no follow-up
// task addresses it.
func MissingTestCoverage(review NormalizedReview) bool {
	if review.ReviewType != "qa" {
		return false
	}
	for _, issue := range review.BlockingIssues {
		text := strings.ToLower(issue.Title + " " + issue.Description)
		if containsAny(text, "test infrastructure missing", "no test command", "missing test framework", "no test runner") {
			return true
		}
	}
	return false
}

// FollowUpAddressesTestCoverage reports whether any follow-up task in
// tasks appears to address missing test coverage (by label or title/
// description wording), for the coverage-enforcement check above.
func FollowUpAddressesTestCoverage(tasks []FollowUpTask) bool {
	for _, t := range tasks {
		for _, label := range t.Labels {
			if strings.Contains(strings.ToLower(label), "test") {
				return true
			}
		}
		text := strings.ToLower(t.Title + " " + t.Description)
		if containsAny(text, "test infrastructure", "test harness", "test framework", "add tests", "test runner", "test command") {
			return true
		}
	}
	return false
}

// EveryIssueAddressed reports whether every blocking issue in issues is
// referenced by at least one follow-up task (matched by issue id
// appearing in a task's metadata, or by title substring as a fallback for
// PM-authored follow-ups that don't carry the id through).
func EveryIssueAddressed(issues []BlockingIssue, tasks []FollowUpTask) bool {
	for _, issue := range issues {
		if !issue.Blocking {
			continue
		}
		if !issueAddressed(issue, tasks) {
			return false
		}
	}
	return true
}

func issueAddressed(issue BlockingIssue, tasks []FollowUpTask) bool {
	for _, t := range tasks {
		if id, ok := t.Metadata["issue_id"].(string); ok && id == issue.ID {
			return true
		}
		target := strings.ToLower(t.Title + " " + t.Description)
		for _, word := range significantWords(issue.Title) {
			if strings.Contains(target, word) {
				return true
			}
		}
	}
	return false
}

// significantWords lower-cases title and returns its words of length >= 4,
// a cheap substitute for the fuzzy title-overlap matching the duplicate
// detector (pkg/taskcreation) performs against dashboard tasks — here the
// comparison is only ever against a handful of in-memory follow-up tasks
// from the same PM response, so a full scoring pass is unnecessary.
func significantWords(title string) []string {
	var words []string
	for _, w := range strings.Fields(strings.ToLower(title)) {
		if len(w) >= 4 {
			words = append(words, w)
		}
	}
	return words
}
