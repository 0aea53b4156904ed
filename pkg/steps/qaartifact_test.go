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
	"os"
	"path/filepath"
	"testing"
)

func TestQAArtifactLoadStep_ReadsBackPersistedArtifact(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".ma", "tasks", "task-1", "reviews")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "qa.json"), []byte(`{"status":"fail","tests_executed":0}`), 0o644); err != nil {
		t.Fatalf("seed artifact: %v", err)
	}

	wctx := newTestContext(root)
	out, err := runStep(t, Deps{}, "qa_artifact_load", map[string]interface{}{
		"task_id":     "task-1",
		"review_type": "qa",
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stepStatus(wctx) != "done" {
		t.Fatalf("expected done, got %s", stepStatus(wctx))
	}
	payload, ok := out["payload"].(map[string]interface{})
	if !ok || payload["status"] != "fail" {
		t.Fatalf("unexpected payload: %#v", out["payload"])
	}
}

func TestQAArtifactLoadStep_MissingArtifactFails(t *testing.T) {
	root := t.TempDir()
	wctx := newTestContext(root)
	if _, err := runStep(t, Deps{}, "qa_artifact_load", map[string]interface{}{
		"task_id":     "task-missing",
		"review_type": "qa",
	}, wctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if stepStatus(wctx) != "failed" {
		t.Fatalf("expected not-found failure, got %s", stepStatus(wctx))
	}
}

func TestQAArtifactLoadStep_PathEscapeRejected(t *testing.T) {
	root := t.TempDir()
	wctx := newTestContext(root)
	if _, err := runStep(t, Deps{}, "qa_artifact_load", map[string]interface{}{
		"task_id":     "../../escape",
		"review_type": "qa",
	}, wctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if stepStatus(wctx) != "failed" {
		t.Fatalf("expected the path escape to fail the step, got %s", stepStatus(wctx))
	}
}
