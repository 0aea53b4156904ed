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

import "testing"

func TestNormalizeFailure_ParsesStructuredIssues(t *testing.T) {
	payload := map[string]interface{}{
		"issues": []interface{}{
			map[string]interface{}{"title": "2 tests failed", "severity": "high"},
		},
	}
	nr := NormalizeFailure("qa", "2 tests failed", payload)
	if len(nr.BlockingIssues) != 1 || nr.BlockingIssues[0].Severity != SeverityHigh {
		t.Fatalf("unexpected issues: %+v", nr.BlockingIssues)
	}
	if !nr.HasBlockingIssues {
		t.Fatal("expected HasBlockingIssues to be true")
	}
}

func TestNormalizeFailure_SynthesizesIssueWhenPayloadHasNone(t *testing.T) {
	nr := NormalizeFailure("code_review", "review failed, unclear why", map[string]interface{}{})
	if len(nr.BlockingIssues) != 1 {
		t.Fatalf("expected a single synthetic issue, got %d", len(nr.BlockingIssues))
	}
	if nr.BlockingIssues[0].Description != "review failed, unclear why" {
		t.Fatalf("expected synthetic issue to carry the details, got %q", nr.BlockingIssues[0].Description)
	}
}

func TestMissingTestCoverage_DetectsQAInfrastructureFailure(t *testing.T) {
	nr := NormalizeFailure("qa", "test infrastructure missing", map[string]interface{}{})
	if !MissingTestCoverage(nr) {
		t.Fatal("expected missing test infrastructure to be detected")
	}
}

func TestFollowUpAddressesTestCoverage(t *testing.T) {
	tasks := []FollowUpTask{{Title: "Set up pytest harness", Labels: []string{"test-follow-up"}}}
	if !FollowUpAddressesTestCoverage(tasks) {
		t.Fatal("expected the test-follow-up label to satisfy coverage")
	}
	if FollowUpAddressesTestCoverage([]FollowUpTask{{Title: "Fix typo"}}) {
		t.Fatal("expected an unrelated follow-up not to satisfy coverage")
	}
}

func TestEveryIssueAddressed(t *testing.T) {
	issues := []BlockingIssue{{ID: "qa-0", Title: "2 tests failed", Blocking: true}}
	addressed := []FollowUpTask{{Title: "Fix the 2 failing tests"}}
	if !EveryIssueAddressed(issues, addressed) {
		t.Fatal("expected issue to be addressed by a title match")
	}
	if EveryIssueAddressed(issues, []FollowUpTask{{Title: "Unrelated"}}) {
		t.Fatal("expected issue to be reported unaddressed")
	}
}
