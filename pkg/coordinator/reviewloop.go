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

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/maflow/orchestrator/pkg/dashboard"
	"github.com/maflow/orchestrator/pkg/persona"
	"github.com/maflow/orchestrator/pkg/review"
	"github.com/maflow/orchestrator/pkg/taskcreation"
	"github.com/maflow/orchestrator/pkg/telemetry"
	"github.com/maflow/orchestrator/pkg/workflow"
	"github.com/maflow/orchestrator/pkg/workflow/subworkflow"
)

// runReviewLoop walks the four review stages in order. A stage that
// passes advances to the next one; a stage that fails or comes back
// unknown invokes review-failure-handling.yaml, registers any tasks it
// created as the parent task's blocked dependencies, and then re-enters
// the SAME stage rather than moving on, bounded by MaxReviewRetries.
// Returns whether the run ended aborted.
func (c *Coordinator) runReviewLoop(ctx context.Context, wctx *workflow.Context, task *dashboard.Task, allTasks []dashboard.Task, milestones []dashboard.Milestone, backlogMilestoneID string) bool {
	for _, stage := range reviewStages {
		attempts := 0
		for {
			result, err := c.requestReview(ctx, wctx, task, stage)
			if err != nil {
				wctx.Abort(stage.Name, fmt.Sprintf("%s review request failed: %s", stage.Name, err))
				return true
			}
			wctx.Set(stage.Name+"_status", string(result.Status))

			if result.Status == review.StatusPass {
				break
			}

			attempts++
			if attempts > c.cfg.MaxReviewRetries {
				wctx.Abort(stage.Name, fmt.Sprintf("exceeded max review retries (%d) at stage %s", c.cfg.MaxReviewRetries, stage.Name))
				return true
			}

			child, err := c.runReviewFailureHandling(ctx, wctx, task, allTasks, milestones, stage.Name, result, backlogMilestoneID)
			if err != nil {
				wctx.Abort(stage.Name, fmt.Sprintf("review-failure-handling failed: %s", err))
				return true
			}
			if child.Aborted() {
				wctx.Abort(stage.Name, fmt.Sprintf("review-failure-handling aborted at %s: %s", child.FailedStep(), child.AbortReason()))
				return true
			}

			c.registerBlockedDependencies(ctx, task, child)
			telemetry.RecordReviewRetry(stage.Name)
			// loop back and re-run the same stage
		}
	}
	return false
}

// requestReview dispatches a single review-type persona request and
// classifies the response, mirroring pkg/steps/personarequest.go's
// review_type handling since the review loop's own control flow (the
// same-stage retry) cannot be expressed as a declarative step.
func (c *Coordinator) requestReview(ctx context.Context, wctx *workflow.Context, task *dashboard.Task, stage reviewStageSpec) (review.Result, error) {
	req := persona.Request{
		WorkflowID: wctx.WorkflowID,
		Step:       stage.Name,
		From:       "coordinator",
		ToPersona:  stage.Persona,
		Intent:     stage.Name,
		Payload: map[string]interface{}{
			"task":   taskPayload(*task),
			"branch": wctx.Branch,
		},
		ProjectID: wctx.ProjectID,
		Branch:    wctx.Branch,
		TaskID:    task.ID,
	}

	result, err := c.cfg.Dispatcher.Request(ctx, req, nil)
	if err != nil {
		return review.Result{}, err
	}

	payload := parseResultPayload(result.Event.Result)
	return review.InterpretStatus(stage.Name, result.Event.Result, payload), nil
}

// stringSliceFromMetadata reads a string-list metadata field that may
// have come straight from typed Go code ([]string) or round-tripped
// through JSON ([]interface{} of strings), depending on which dashboard
// client implementation produced the task.
func stringSliceFromMetadata(m map[string]interface{}, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func parseResultPayload(result string) map[string]interface{} {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		return nil
	}
	return payload
}

// runReviewFailureHandling invokes review-failure-handling.yaml as a
// child of wctx, seeded with the failing review's normalized inputs.
// existing_tasks carries every other task on the dashboard, whatever its
// status, so the
// child workflow's bulk_task_creation step can detect a follow-up task
// that duplicates one already there, not just ones created earlier in
// this same run.
func (c *Coordinator) runReviewFailureHandling(ctx context.Context, wctx *workflow.Context, task *dashboard.Task, allTasks []dashboard.Task, milestones []dashboard.Milestone, reviewType string, result review.Result, backlogMilestoneID string) (*workflow.Context, error) {
	inputs := map[string]interface{}{
		"review_type": reviewType,
		"review_result": map[string]interface{}{
			"details": result.Details,
			"payload": result.Payload,
		},
		"review_status":        string(result.Status),
		"task":                 taskPayload(*task),
		"parent_milestone_id":  task.MilestoneID,
		"backlog_milestone_id": backlogMilestoneID,
		"existing_tasks":       existingTasksPayload(allTasks, milestones, task.ID),
	}

	return subworkflow.Run(ctx, c.cfg.Registry, c.cfg.Loader, c.cfg.WorkflowsDir, defaultReviewFailurePath, wctx, inputs)
}

// existingTasksPayload renders allTasks (excluding excludeTaskID, the
// task currently being worked) into the []interface{} of
// map[string]interface{} shape bulk_task_creation's existing_tasks
// config expects, pre-resolving each task's milestone id to its slug so
// the title_and_milestone and content_hash duplicate-detection
// strategies can compare slugs directly.
func existingTasksPayload(allTasks []dashboard.Task, milestones []dashboard.Milestone, excludeTaskID string) []interface{} {
	out := make([]interface{}, 0, len(allTasks))
	for _, t := range allTasks {
		if t.ID == excludeTaskID {
			continue
		}
		out = append(out, map[string]interface{}{
			"id":             t.ID,
			"external_id":    t.ExternalID,
			"title":          t.Title,
			"description":    t.Description,
			"milestone_slug": milestoneSlugByID(milestones, t.MilestoneID),
		})
	}
	return out
}

// milestoneSlugByID is resolveMilestoneBySlug's inverse: it looks up a
// milestone's slug by id rather than a milestone's id by slug.
func milestoneSlugByID(milestones []dashboard.Milestone, id string) string {
	for _, m := range milestones {
		if m.ID == id {
			return m.Slug
		}
	}
	return ""
}

// registerBlockedDependencies reads the created-task ids out of the
// review-failure-handling child's "create_tasks" step output and patches
// them onto the parent task's blocked_dependencies metadata. This is
// deliberately done here rather than as a workflow step: it needs the
// parent task's own identity and lock_version, which only the
// coordinator holds.
func (c *Coordinator) registerBlockedDependencies(ctx context.Context, task *dashboard.Task, child *workflow.Context) {
	out, err := child.GetMap("create_tasks")
	if err != nil {
		return
	}
	created, _ := out["created"].([]taskcreation.CreatedTask)
	if len(created) == 0 {
		return
	}

	var newIDs []string
	for _, ct := range created {
		if ct.TaskID != "" {
			newIDs = append(newIDs, ct.TaskID)
		}
	}
	if len(newIDs) == 0 {
		return
	}

	existing := stringSliceFromMetadata(task.Metadata, "blocked_dependencies")
	blocked := append(append([]string{}, existing...), newIDs...)

	metadata := map[string]interface{}{"blocked_dependencies": blocked}
	patch := dashboard.TaskPatch{Metadata: metadata, LockVersion: task.LockVersion}
	updated, err := c.cfg.Dashboard.PatchTask(ctx, c.cfg.ProjectID, task.ID, patch)
	if err != nil {
		c.cfg.Logger.Error("failed to register blocked dependencies", "task_id", task.ID, "error", err)
		return
	}
	*task = *updated
}
