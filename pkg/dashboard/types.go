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

// Package dashboard is a client for the project-tracking dashboard
// consumed (not implemented) by the coordinator: projects, tasks,
// milestones, and the context-scan upload endpoint. The backend itself
// is out of scope; this package only models the REST contract and
// provides a production-shaped HTTP implementation.
package dashboard

// Project is the subset of project fields the coordinator reads.
type Project struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RepoURL      string `json:"repo_url"`
	BaseBranch   string `json:"base_branch"`
	DefaultOwner string `json:"default_owner"`
}

// Status is the project's current dashboard status.
type Status struct {
	ProjectID string `json:"project_id"`
	State     string `json:"state"`
	UpdatedAt string `json:"updated_at"`
}

// StatusSummary is the aggregated task-count view of a project's status.
type StatusSummary struct {
	ProjectID  string `json:"project_id"`
	OpenTasks  int    `json:"open_tasks"`
	InReview   int    `json:"in_review"`
	Done       int    `json:"done"`
	Blocked    int    `json:"blocked"`
	UrgentOpen int    `json:"urgent_open"`
}

// NextAction is the dashboard's recommendation for what the coordinator
// should work on next.
type NextAction struct {
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id,omitempty"`
	Action    string `json:"action"`
	Reason    string `json:"reason,omitempty"`
}

// Task mirrors the dashboard's task record.
type Task struct {
	ID            string                 `json:"id"`
	ExternalID    string                 `json:"external_id,omitempty"`
	ProjectID     string                 `json:"project_id"`
	Title         string                 `json:"title"`
	Description   string                 `json:"description,omitempty"`
	Status        string                 `json:"status"`
	PriorityScore int                    `json:"priority_score"`
	MilestoneID   string                 `json:"milestone_id,omitempty"`
	Assignee      string                 `json:"assignee,omitempty"`
	Labels        []string               `json:"labels,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	LockVersion   int                    `json:"lock_version"`
}

// TaskPatch is a partial task update, applied with an optimistic
// lock_version check.
type TaskPatch struct {
	Status        *string                `json:"status,omitempty"`
	PriorityScore *int                   `json:"priority_score,omitempty"`
	MilestoneID   *string                `json:"milestone_id,omitempty"`
	Assignee      *string                `json:"assignee,omitempty"`
	Labels        *[]string              `json:"labels,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	LockVersion   int                    `json:"lock_version"`
}

// Milestone mirrors the dashboard's milestone record.
type Milestone struct {
	ID       string `json:"id"`
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// CreateMilestoneRequest creates a new milestone under a project.
type CreateMilestoneRequest struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id,omitempty"`
}

// BulkCreateResult is one entry of a POST .../tasks:bulk response.
type BulkCreateResult struct {
	ExternalID string `json:"external_id"`
	TaskID     string `json:"task_id,omitempty"`
	Skipped    bool   `json:"skipped"`
	Reason     string `json:"reason,omitempty"`
}

// ContextUpload is the body posted to the context-scan upload endpoint.
type ContextUpload struct {
	RepoID          string `json:"repo_id"`
	Branch          string `json:"branch"`
	WorkflowID      string `json:"workflow_id"`
	SnapshotPath    string `json:"snapshot_path"`
	SummaryPath     string `json:"summary_path"`
	FilesNDJSONPath string `json:"files_ndjson_path"`
	TotalsFiles     int    `json:"totals_files"`
	TotalsLines     int    `json:"totals_lines"`
	ComponentsJSON  string `json:"components_json"`
	HotspotsJSON    string `json:"hotspots_json"`
}
