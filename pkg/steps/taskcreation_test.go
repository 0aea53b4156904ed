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
	"github.com/maflow/orchestrator/pkg/taskcreation"
)

func TestBulkTaskCreationStep_CreatesNonDuplicateTasks(t *testing.T) {
	dash := &fakeDashboard{}
	wctx := newTestContext(t.TempDir())

	out, err := runStep(t, Deps{Dashboard: dash}, "bulk_task_creation", map[string]interface{}{
		"review_type": "qa",
		"follow_up_tasks": []review.FollowUpTask{
			{Title: "add regression test for the retry path", Priority: review.PriorityHigh},
		},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stepStatus(wctx) != "done" {
		t.Fatalf("expected done, got %s log=%v", stepStatus(wctx), wctx.DiagnosticLog())
	}
	created, ok := out["created"].([]taskcreation.CreatedTask)
	if !ok || len(created) != 1 {
		t.Fatalf("expected one created task, got %#v", out["created"])
	}
	if len(dash.created) != 1 {
		t.Fatalf("expected the dashboard to see one create call, got %d", len(dash.created))
	}
}

func TestBulkTaskCreationStep_SkipsIdempotentRerun(t *testing.T) {
	dash := &fakeDashboard{}
	wctx := newTestContext(t.TempDir())

	cfg := map[string]interface{}{
		"review_type": "qa",
		"step_id":     "review_failure",
		"follow_up_tasks": []review.FollowUpTask{
			{Title: "add regression test", Priority: review.PriorityHigh},
		},
	}

	if _, err := runStep(t, Deps{Dashboard: dash}, "bulk_task_creation", cfg, wctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(dash.created) != 1 {
		t.Fatalf("expected one created task after first run, got %d", len(dash.created))
	}

	existing := []interface{}{
		map[string]interface{}{"id": "task-1", "external_id": "wf-1:review_failure:0"},
	}
	cfg["existing_tasks"] = existing

	wctx2 := newTestContext(t.TempDir())
	out, err := runStep(t, Deps{Dashboard: dash}, "bulk_task_creation", cfg, wctx2)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	skipped, ok := out["skipped"].([]taskcreation.CreatedTask)
	if !ok || len(skipped) != 1 || skipped[0].Reason != "idempotent_rerun" {
		t.Fatalf("expected an idempotent-rerun skip, got %#v", out["skipped"])
	}
	if len(dash.created) != 1 {
		t.Fatalf("expected no additional dashboard create call, got %d", len(dash.created))
	}
}

func TestBulkTaskCreationStep_NoTasksIsANoop(t *testing.T) {
	dash := &fakeDashboard{}
	wctx := newTestContext(t.TempDir())
	out, err := runStep(t, Deps{Dashboard: dash}, "bulk_task_creation", map[string]interface{}{}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	created, _ := out["created"].([]taskcreation.CreatedTask)
	if len(created) != 0 {
		t.Fatalf("expected no created tasks, got %#v", created)
	}
}
