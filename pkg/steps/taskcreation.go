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

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/taskcreation"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// RegisterBulkTaskCreation adds the "bulk_task_creation" step type: builds
// normalized, deduplicated create requests out of a set of follow-up tasks
// and submits every non-duplicate request to the dashboard. Config:
//
//	follow_up_tasks ([]review.FollowUpTask or []map, required)
//	review_type (string)
//	parent_task_title (string)
//	parent_milestone_id (string)
//	backlog_milestone_id (string)
//	duplicate_strategy ("external_id"|"title"|"title_and_milestone"|"content_hash", default "content_hash")
//	existing_tasks ([]map, optional) - {id, external_id, title, description, milestone_slug}
func RegisterBulkTaskCreation(reg *workflow.Registry, deps Deps) {
	reg.Register("bulk_task_creation", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		tasks := followUpTasksFromConfig(cfg, "follow_up_tasks")
		if len(tasks) == 0 {
			return workflow.StepOutput{Data: map[string]interface{}{"created": []taskcreation.CreatedTask{}, "skipped": []taskcreation.CreatedTask{}}}, nil
		}

		plan := taskcreation.Plan{
			WorkflowRunID:      wctx.WorkflowID,
			StepID:             configString(cfg, "step_id", "review_failure"),
			ReviewType:         configString(cfg, "review_type", ""),
			ParentTaskTitle:    configString(cfg, "parent_task_title", ""),
			ParentMilestoneID:  configString(cfg, "parent_milestone_id", ""),
			BacklogMilestoneID: configString(cfg, "backlog_milestone_id", ""),
			DuplicateStrategy:  duplicateStrategyFromConfig(cfg),
			ExistingTasks:      existingTasksFromConfig(cfg),
		}

		requests, skipped := taskcreation.BuildRequests(plan, tasks)
		if len(requests) == 0 {
			return workflow.StepOutput{Data: map[string]interface{}{"created": []taskcreation.CreatedTask{}, "skipped": skipped}}, nil
		}

		if deps.Dashboard == nil {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "dashboard", Message: "bulk_task_creation requires a configured dashboard client"}
		}

		created, err := taskcreation.Create(ctx, deps.Dashboard, wctx.ProjectID, requests)
		if err != nil {
			return workflow.StepOutput{Data: map[string]interface{}{"created": created, "skipped": skipped}}, err
		}

		return workflow.StepOutput{Data: map[string]interface{}{"created": created, "skipped": skipped}}, nil
	})
}

func duplicateStrategyFromConfig(cfg map[string]interface{}) taskcreation.Strategy {
	switch configString(cfg, "duplicate_strategy", "content_hash") {
	case "external_id":
		return taskcreation.StrategyExternalID
	case "title":
		return taskcreation.StrategyTitle
	case "title_and_milestone":
		return taskcreation.StrategyTitleAndMilestone
	default:
		return taskcreation.StrategyContentHash
	}
}

func existingTasksFromConfig(cfg map[string]interface{}) []taskcreation.ExistingTask {
	raw, ok := cfg["existing_tasks"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]taskcreation.ExistingTask, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, taskcreation.ExistingTask{
			ID:            stringOrEmpty(m["id"]),
			ExternalID:    stringOrEmpty(m["external_id"]),
			Title:         stringOrEmpty(m["title"]),
			Description:   stringOrEmpty(m["description"]),
			MilestoneSlug: stringOrEmpty(m["milestone_slug"]),
		})
	}
	return out
}
