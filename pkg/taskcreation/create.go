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

package taskcreation

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/review"
)

// Dashboard is the subset of the dashboard client bulk task creation
// needs. pkg/dashboard provides the concrete implementation; defined here
// so this package does not import it back (dashboard has no reason to
// know about task-creation policy).
type Dashboard interface {
	CreateTask(ctx context.Context, projectID string, req CreateTaskRequest) (taskID string, err error)
}

// CreateTaskRequest is the dashboard-facing shape of one task to create,
// already fully normalized (title, labels, priority score, milestone,
// assignee, external id).
type CreateTaskRequest struct {
	ExternalID    string
	Title         string
	Description   string
	PriorityScore int
	MilestoneID   string
	Assignee      string
	Labels        []string
	Metadata      map[string]interface{}
}

// CreatedTask records the outcome of creating (or skipping) one follow-up
// task.
type CreatedTask struct {
	ExternalID string
	TaskID     string
	Skipped    bool
	Reason     string // "missing_title", "idempotent_rerun" or "duplicate_detected" when Skipped
	MatchScore float64
}

// Plan is everything BuildRequests needs to turn a PM decision's
// follow-ups into normalized, deduplicated create requests.
type Plan struct {
	WorkflowRunID      string
	StepID             string
	ReviewType         string
	ParentTaskTitle    string
	ParentMilestoneID  string
	BacklogMilestoneID string
	DuplicateStrategy  Strategy
	ExistingTasks      []ExistingTask
}

// BuildRequests normalizes each follow-up task in tasks into a
// CreateTaskRequest with a deterministic external_id, skipping (and
// recording) any that duplicate-detect against plan.ExistingTasks or an
// external_id already present in plan.ExistingTasks.
func BuildRequests(plan Plan, tasks []review.FollowUpTask) ([]CreateTaskRequest, []CreatedTask) {
	var requests []CreateTaskRequest
	var skipped []CreatedTask

	for i, t := range tasks {
		if t.Title == "" && plan.ParentTaskTitle == "" {
			skipped = append(skipped, CreatedTask{Skipped: true, Reason: "missing_title"})
			continue
		}

		externalID := fmt.Sprintf("%s:%s:%d", plan.WorkflowRunID, plan.StepID, i)
		urgent := t.Priority.IsUrgent()
		milestoneID, _ := RouteMilestone(t.Priority, plan.ParentMilestoneID, plan.BacklogMilestoneID)
		title := NormalizeTitle(t.Title, plan.ParentTaskTitle, plan.ReviewType, urgent)
		labels := NormalizeLabels(t.Labels, plan.ReviewType, urgent)
		score := PriorityScore(t.Priority, plan.ReviewType, title)

		candidate := Candidate{ExternalID: externalID, Title: title, Description: t.Description, MilestoneSlug: milestoneSlugOf(milestoneID, plan.ExistingTasks)}

		if match, ok := existingExternalID(externalID, plan.ExistingTasks); ok {
			skipped = append(skipped, CreatedTask{ExternalID: externalID, TaskID: match, Skipped: true, Reason: "idempotent_rerun"})
			continue
		}

		if match, ok := DetectDuplicate(plan.DuplicateStrategy, candidate, plan.ExistingTasks); ok && match.Duplicate {
			skipped = append(skipped, CreatedTask{ExternalID: externalID, TaskID: match.ExistingTaskID, Skipped: true, Reason: "duplicate_detected", MatchScore: match.Score})
			continue
		}

		requests = append(requests, CreateTaskRequest{
			ExternalID:    externalID,
			Title:         title,
			Description:   t.Description,
			PriorityScore: score,
			MilestoneID:   milestoneID,
			Assignee:      "implementation-planner",
			Labels:        labels,
			Metadata:      t.Metadata,
		})
	}

	return requests, skipped
}

func existingExternalID(externalID string, existing []ExistingTask) (string, bool) {
	for _, e := range existing {
		if e.ExternalID == externalID {
			return e.ID, true
		}
	}
	return "", false
}

func milestoneSlugOf(milestoneID string, existing []ExistingTask) string {
	// The candidate's own milestone is only known by id at this point;
	// title_and_milestone/content_hash compare by slug, so callers that
	// need slug-accurate matching should pre-resolve ExistingTasks'
	// MilestoneSlug from the same milestone id space. Absent that
	// resolution here, an empty slug makes those two strategies fall back
	// to the "no milestone constraint" branch rather than a false match.
	_ = milestoneID
	_ = existing
	return ""
}

// Create submits requests to dash, retrying each up to 3 times with
// exponential backoff (1s, 2s, 4s) on a transient error. If any requests
// fail after retries while earlier ones in the batch already succeeded,
// Create returns a *maerrors.ExternalError whose Message starts with
// "partial_task_creation_failure", alongside the results collected so far;
// a batch with zero successes and a failure returns total failure.
func Create(ctx context.Context, dash Dashboard, projectID string, requests []CreateTaskRequest) ([]CreatedTask, error) {
	var created []CreatedTask

	for _, req := range requests {
		taskID, err := createWithRetry(ctx, dash, projectID, req)
		if err != nil {
			if len(created) > 0 {
				return created, &maerrors.ExternalError{Service: "dashboard", Message: "partial_task_creation_failure: " + err.Error()}
			}
			return created, &maerrors.ExternalError{Service: "dashboard", Message: err.Error()}
		}
		created = append(created, CreatedTask{ExternalID: req.ExternalID, TaskID: taskID})
	}

	return created, nil
}

func createWithRetry(ctx context.Context, dash Dashboard, projectID string, req CreateTaskRequest) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	bounded := backoff.WithMaxRetries(b, 3)

	var taskID string
	operation := func() error {
		id, err := dash.CreateTask(ctx, projectID, req)
		if err != nil {
			return err
		}
		taskID = id
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bounded, ctx)); err != nil {
		return "", err
	}
	return taskID, nil
}
