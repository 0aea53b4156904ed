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

package subworkflow

import (
	"context"
	"fmt"
	"path/filepath"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/workflow"
	"github.com/maflow/orchestrator/pkg/workflow/expression"
)

type callStackKey struct{}

func callStackFrom(ctx context.Context) *LoadContext {
	if lc, ok := ctx.Value(callStackKey{}).(*LoadContext); ok {
		return lc
	}
	return &LoadContext{}
}

func withCallStack(ctx context.Context, lc *LoadContext) context.Context {
	return context.WithValue(ctx, callStackKey{}, lc)
}

// Register adds the "workflow" step type to reg: a step with this type
// loads and runs another workflow definition (found relative to baseDir)
// as a child of the current run, sharing the same transport and workflow
// identity, seeded with the step's "inputs" config and returning the
// child run's final variables as its output.
//
// reg is also the registry the child engine dispatches steps against, so
// nested "workflow" steps resolve through the same step library as the
// parent.
func Register(reg *workflow.Registry, loader *Loader, baseDir string) {
	reg.Register("workflow", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		path, _ := cfg["workflow"].(string)
		if path == "" {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "workflow", Message: "sub-workflow step missing a \"workflow\" path"}
		}
		inputs, _ := cfg["inputs"].(map[string]interface{})

		child, err := Run(ctx, reg, loader, baseDir, path, wctx, inputs)
		if err != nil {
			return workflow.StepOutput{}, err
		}
		if child.Aborted() {
			return workflow.StepOutput{
				Error: fmt.Sprintf("sub-workflow %s aborted at %s: %s", path, child.FailedStep(), child.AbortReason()),
				Abort: true,
			}, nil
		}
		return workflow.StepOutput{Data: child.Variables()}, nil
	})
}

// Run loads the workflow definition at path (relative to baseDir) and
// executes it as a child of parent: a fresh Context sharing parent's
// transport and workflow/project identity, seeded with inputs, scheduled
// by a new Engine over the same Registry. The returned Context carries
// the child run's own completed-step history, variables, and abort
// state; callers decide how to fold that back into the parent run.
//
// Run is also how the coordinator invokes the review-failure-handling
// flow directly, without it appearing as a "workflow" step in any
// definition.
func Run(ctx context.Context, reg *workflow.Registry, loader *Loader, baseDir, path string, parent *workflow.Context, inputs map[string]interface{}) (*workflow.Context, error) {
	lc := callStackFrom(ctx)

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve sub-workflow base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(absBase, path))
	if err != nil {
		return nil, fmt.Errorf("resolve sub-workflow path: %w", err)
	}

	def, err := loader.Load(baseDir, path, lc)
	if err != nil {
		return nil, fmt.Errorf("load sub-workflow %s: %w", path, err)
	}

	child := workflow.NewContext(parent.WorkflowID, parent.ProjectID, parent.RepoRoot, parent.Branch, parent.Transport)
	for k, v := range inputs {
		child.Set(k, v)
	}

	engine := &workflow.Engine{Registry: reg, Evaluator: expression.New()}
	childCtx := withCallStack(ctx, lc.descend(absPath))
	// A non-nil error here means some step in the child run aborted; that
	// outcome is already fully captured in child's Aborted/FailedStep/
	// AbortReason, so it is reported through the returned Context rather
	// than as a Go error, letting callers decide how to fold an aborted
	// sub-workflow into the parent run.
	_ = engine.Run(childCtx, def, child)
	return child, nil
}
