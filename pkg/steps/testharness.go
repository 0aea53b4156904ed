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

	"github.com/maflow/orchestrator/pkg/review"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// RegisterTestHarnessSynthesis adds the "test_harness_synthesis" step
// type: when a prior test_command_discovery step found nothing runnable,
// synthesizes a critical-priority follow-up task describing a
// language-appropriate remediation plan. Its follow_up_tasks output is
// consumed by task-flow.yaml's own bulk_task_creation step
// (create_test_harness_task), not this step itself — synthesis and
// submission stay separate so a duplicate-detection pass can sit between
// them. Config:
//
//	found (bool) - normally wired from ${test_command_discovery.found}.
//	language (string) - normally wired from ${test_command_discovery.language}.
func RegisterTestHarnessSynthesis(reg *workflow.Registry, deps Deps) {
	reg.Register("test_harness_synthesis", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		found := configBool(cfg, "found", false)
		if found {
			return workflow.StepOutput{Data: map[string]interface{}{"synthesized": false}}, nil
		}

		language := configString(cfg, "language", "")
		framework, plan := languageRemediation(language)

		task := review.FollowUpTask{
			Title:       "No runnable test command detected",
			Description: fmt.Sprintf("Automated test discovery found no runnable test command.\n\nRecommended framework: %s\n\n%s", framework, plan),
			Priority:    review.PriorityCritical,
			Labels:      []string{"test-infrastructure"},
		}

		return workflow.StepOutput{Data: map[string]interface{}{
			"synthesized":     true,
			"follow_up_tasks": []review.FollowUpTask{task},
			"framework":       framework,
		}}, nil
	})
}
