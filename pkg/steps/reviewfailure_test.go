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
	"testing"

	"github.com/maflow/orchestrator/pkg/review"
)

func TestReviewFailureNormalizeStep_BuildsBlockingIssuesFromPayload(t *testing.T) {
	wctx := newTestContext(t.TempDir())
	out, err := runStep(t, Deps{}, "review_failure_normalize", map[string]interface{}{
		"review_type": "qa",
		"details":     "2 tests failed",
		"payload": map[string]interface{}{
			"issues": []interface{}{
				map[string]interface{}{"title": "flaky retry test", "severity": "high"},
			},
		},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	normalized, ok := out["normalized_review"].(review.NormalizedReview)
	if !ok {
		t.Fatalf("expected a NormalizedReview, got %#v", out["normalized_review"])
	}
	if len(normalized.BlockingIssues) != 1 || normalized.BlockingIssues[0].Title != "flaky retry test" {
		t.Fatalf("unexpected blocking issues: %#v", normalized.BlockingIssues)
	}
	if out["has_blocking_issue"] != true {
		t.Fatalf("expected has_blocking_issue=true, got %#v", out)
	}
}

func TestReviewFailureNormalizeStep_RequiresReviewType(t *testing.T) {
	wctx := newTestContext(t.TempDir())
	if _, err := runStep(t, Deps{}, "review_failure_normalize", map[string]interface{}{
		"details": "x",
	}, wctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if stepStatus(wctx) != "failed" {
		t.Fatalf("expected validation failure, got %s", stepStatus(wctx))
	}
}

func TestPMDecisionParseStep_AcceptsBareStringForm(t *testing.T) {
	wctx := newTestContext(t.TempDir())
	out, err := runStep(t, Deps{}, "pm_decision_parse", map[string]interface{}{
		"pm_response": "defer",
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out["decision"] != "defer" {
		t.Fatalf("expected decision=defer, got %#v", out)
	}
}

func TestPMDecisionParseStep_AcceptsStructuredForm(t *testing.T) {
	wctx := newTestContext(t.TempDir())
	out, err := runStep(t, Deps{}, "pm_decision_parse", map[string]interface{}{
		"pm_response": map[string]interface{}{
			"decision": "immediate_fix",
			"follow_up_tasks": []interface{}{
				map[string]interface{}{"title": "fix it", "priority": "high"},
			},
		},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out["decision"] != "immediate_fix" {
		t.Fatalf("expected decision=immediate_fix, got %#v", out)
	}
	tasks, ok := out["follow_up_tasks"].([]review.FollowUpTask)
	if !ok || len(tasks) != 1 {
		t.Fatalf("expected one follow-up task, got %#v", out["follow_up_tasks"])
	}
}

func TestReviewFailureFilterStep_MergesAndDropsEmptyEntries(t *testing.T) {
	wctx := newTestContext(t.TempDir())
	out, err := runStep(t, Deps{}, "review_failure_filter", map[string]interface{}{
		"follow_up_tasks": []review.FollowUpTask{
			{Title: "pm task"},
			{},
		},
		"auto_follow_up_tasks": []review.FollowUpTask{
			{Title: "auto task"},
		},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tasks, ok := out["follow_up_tasks"].([]review.FollowUpTask)
	if !ok || len(tasks) != 2 {
		t.Fatalf("expected 2 surviving tasks, got %#v", out["follow_up_tasks"])
	}
}

func TestReviewFailureCoverageStep_AbortsWhenMissingCoverageUnaddressed(t *testing.T) {
	wctx := newTestContext(t.TempDir())
	normalized := review.NormalizedReview{
		ReviewType: "qa",
		BlockingIssues: []review.BlockingIssue{
			{ID: "qa-0", Title: "no test command found in this repository", Blocking: true},
		},
		HasBlockingIssues: true,
	}

	_, err := runStep(t, Deps{}, "review_failure_coverage", map[string]interface{}{
		"normalized_review": normalized,
		"follow_up_tasks":   []review.FollowUpTask{{Title: "unrelated cleanup"}},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !wctx.Aborted() {
		t.Fatalf("expected the workflow to abort on unaddressed missing test coverage")
	}
}

func TestReviewFailureCoverageStep_PassesWhenCoverageAddressed(t *testing.T) {
	wctx := newTestContext(t.TempDir())
	normalized := review.NormalizedReview{
		ReviewType: "qa",
		BlockingIssues: []review.BlockingIssue{
			{ID: "qa-0", Title: "no test command found in this repository", Blocking: true},
		},
		HasBlockingIssues: true,
	}

	out, err := runStep(t, Deps{}, "review_failure_coverage", map[string]interface{}{
		"normalized_review": normalized,
		"follow_up_tasks":   []review.FollowUpTask{{Title: "add test infrastructure", Labels: []string{"test-infrastructure"}}},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if wctx.Aborted() {
		t.Fatalf("expected no abort when coverage is addressed")
	}
	if out["covered"] != true {
		t.Fatalf("expected covered=true, got %#v", out)
	}
}
