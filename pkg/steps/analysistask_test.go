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
	"strings"
	"testing"

	"github.com/maflow/orchestrator/pkg/review"
)

func TestAnalysisTaskBuilderStep_PicksHighestConfidenceHypothesis(t *testing.T) {
	wctx := newTestContext(t.TempDir())

	out, err := runStep(t, Deps{}, "analysis_task_builder", map[string]interface{}{
		"analysis": map[string]interface{}{
			"hypotheses": []interface{}{
				map[string]interface{}{
					"confidence": 0.4,
					"summary":    "low-confidence guess",
				},
				map[string]interface{}{
					"confidence":          0.9,
					"summary":             "nil pointer dereference in the handler",
					"steps":               []interface{}{"add a nil check", "add a regression test"},
					"acceptance_criteria": []interface{}{"handler no longer panics on empty input"},
					"validation_plan":     "run the reproduction script from the bug report",
					"key_files":           []interface{}{"internal/handler/handler.go"},
				},
			},
		},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out["confidence"] != 0.9 {
		t.Fatalf("expected the higher-confidence hypothesis to win, got %#v", out["confidence"])
	}
	tasks, ok := out["actionable_tasks"].([]review.FollowUpTask)
	if !ok || len(tasks) != 1 {
		t.Fatalf("expected one actionable task, got %#v", out["actionable_tasks"])
	}
	task := tasks[0]
	if task.Title != "nil pointer dereference in the handler" {
		t.Fatalf("unexpected title: %q", task.Title)
	}
	for _, want := range []string{"1. add a nil check", "Acceptance criteria:", "Validation plan:", "internal/handler/handler.go"} {
		if !strings.Contains(task.Description, want) {
			t.Fatalf("expected description to contain %q, got:\n%s", want, task.Description)
		}
	}
}

func TestAnalysisTaskBuilderStep_NoHypothesesProducesNoTasks(t *testing.T) {
	wctx := newTestContext(t.TempDir())
	out, err := runStep(t, Deps{}, "analysis_task_builder", map[string]interface{}{
		"analysis": map[string]interface{}{},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	tasks, ok := out["actionable_tasks"].([]review.FollowUpTask)
	if !ok || len(tasks) != 0 {
		t.Fatalf("expected zero tasks, got %#v", out["actionable_tasks"])
	}
}
