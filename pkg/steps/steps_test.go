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
	"fmt"
	"testing"

	"github.com/maflow/orchestrator/pkg/dashboard"
	"github.com/maflow/orchestrator/pkg/taskcreation"
	"github.com/maflow/orchestrator/pkg/transport"
	"github.com/maflow/orchestrator/pkg/workflow"
	"github.com/maflow/orchestrator/pkg/workflow/expression"
)

// fakeDashboard is an in-memory dashboard.Client for step tests that only
// exercise the task-listing and task-creation surface; every other method
// fails loudly so a test that accidentally depends on one notices instead
// of silently getting a zero value.
type fakeDashboard struct {
	tasks       []dashboard.Task
	created     []taskcreation.CreateTaskRequest
	createErr   error
	createFails int // fail this many CreateTask calls before succeeding
}

func (f *fakeDashboard) CreateTask(ctx context.Context, projectID string, req taskcreation.CreateTaskRequest) (string, error) {
	if f.createFails > 0 {
		f.createFails--
		return "", fmt.Errorf("transient dashboard error")
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, req)
	return fmt.Sprintf("task-%d", len(f.created)), nil
}

func (f *fakeDashboard) GetProject(ctx context.Context, projectID string) (*dashboard.Project, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeDashboard) GetStatus(ctx context.Context, projectID string) (*dashboard.Status, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeDashboard) GetStatusSummary(ctx context.Context, projectID string) (*dashboard.StatusSummary, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeDashboard) GetNextAction(ctx context.Context, projectID string) (*dashboard.NextAction, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeDashboard) ListTasks(ctx context.Context, projectID string) ([]dashboard.Task, error) {
	return f.tasks, nil
}
func (f *fakeDashboard) BulkCreateTasks(ctx context.Context, projectID string, reqs []taskcreation.CreateTaskRequest) ([]dashboard.BulkCreateResult, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeDashboard) PatchTask(ctx context.Context, projectID, taskID string, patch dashboard.TaskPatch) (*dashboard.Task, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeDashboard) ListMilestones(ctx context.Context, projectID string) ([]dashboard.Milestone, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeDashboard) CreateMilestone(ctx context.Context, projectID string, req dashboard.CreateMilestoneRequest) (*dashboard.Milestone, error) {
	return nil, fmt.Errorf("not implemented")
}
func (f *fakeDashboard) UploadContext(ctx context.Context, endpoint string, upload dashboard.ContextUpload) error {
	return fmt.Errorf("not implemented")
}

var _ dashboard.Client = (*fakeDashboard)(nil)

// newTestContext builds a Context over an in-memory transport, matching
// the construction pattern pkg/workflow/subworkflow's tests use.
func newTestContext(repoRoot string) *workflow.Context {
	return workflow.NewContext("wf-1", "proj-1", repoRoot, "main", transport.NewMemory())
}

// runStep builds a single-step Definition of stepType with the given
// config, registers just that step family into a fresh registry, and runs
// it to completion. Returns the resolved step output map and any run
// error (nil even when the step itself failed; inspect wctx for that).
func runStep(t *testing.T, deps Deps, stepType string, cfg map[string]interface{}, wctx *workflow.Context) (map[string]interface{}, error) {
	t.Helper()
	reg := workflow.NewRegistry()
	Register(reg, deps)

	def := &workflow.Definition{
		Name: "test",
		Steps: []workflow.StepDefinition{
			{Name: "under_test", Type: stepType, Config: cfg, Retry: &workflow.RetryDefinition{MaxAttempts: 1}},
		},
	}

	engine := &workflow.Engine{Registry: reg, Evaluator: expression.New()}
	runErr := engine.Run(context.Background(), def, wctx)
	out, _ := wctx.GetMap("under_test")
	return out, runErr
}

// stepStatus returns the terminal status the engine recorded for the
// single step runStep executed ("done" or "failed").
func stepStatus(wctx *workflow.Context) string {
	s, _ := wctx.GetString("under_test_status")
	return s
}
