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
	"strings"

	"github.com/maflow/orchestrator/pkg/workflow"
)

// resolvedDependencyStatuses are dashboard task statuses that count as
// "resolved" for a blocked-dependency check, independent of which exact
// terminal status wording the dashboard schema uses.
var resolvedDependencyStatuses = map[string]bool{
	"done": true, "closed": true, "resolved": true, "completed": true,
}

// RegisterDependencyStatus adds the "dependency_status" step type:
// fetches every task listed in blocked_dependencies and classifies it as
// resolved or pending.
//
// Config: blocked_dependencies ([]string of task ids).
func RegisterDependencyStatus(reg *workflow.Registry, deps Deps) {
	reg.Register("dependency_status", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		ids := configStringSlice(cfg, "blocked_dependencies")
		if len(ids) == 0 {
			return workflow.StepOutput{Data: map[string]interface{}{
				"resolved": []string{}, "pending": []string{}, "allResolved": true,
			}}, nil
		}

		tasks, err := deps.Dashboard.ListTasks(ctx, wctx.ProjectID)
		if err != nil {
			return workflow.StepOutput{}, err
		}
		byID := make(map[string]string, len(tasks))
		for _, t := range tasks {
			byID[t.ID] = t.Status
		}

		var resolved, pending []string
		for _, id := range ids {
			status, ok := byID[id]
			if ok && resolvedDependencyStatuses[strings.ToLower(status)] {
				resolved = append(resolved, id)
			} else {
				pending = append(pending, id)
			}
		}

		return workflow.StepOutput{Data: map[string]interface{}{
			"resolved":    resolved,
			"pending":     pending,
			"allResolved": len(pending) == 0,
		}}, nil
	})
}
