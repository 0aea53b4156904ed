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

// Package coordinator drives the top-level task loop: selecting the next
// task off the dashboard, preparing its branch, running its task-flow
// workflow, walking it through the four review stages (looping back into
// the review-failure-handling sub-workflow on each failure), and
// recording the outcome. It is the only package that runs a workflow
// definition directly rather than as a declared step.
package coordinator

import "strings"

// State is the coordinator's position in its per-iteration run loop.
type State string

const (
	StateIdle            State = "idle"
	StateSelecting       State = "selecting"
	StatePreparingBranch State = "preparing_branch"
	StateRunning         State = "running"
	StateAdvancing       State = "advancing"
	StateAborted         State = "aborted"
	StateDone            State = "done"
)

// Dashboard task statuses the coordinator itself writes or reads. Every
// other status string (e.g. a dashboard-defined "triage" or "backlog"
// column) passes through untouched; the coordinator only needs to
// recognize its own terminal/in-flight markers.
const (
	TaskStatusInProgress = "in_progress"
	TaskStatusInReview   = "in_review"
	TaskStatusDone       = "done"
	TaskStatusBlocked    = "blocked"
)

// terminalTaskStatuses mirrors the resolved-dependency status set
// pkg/steps/dependency.go uses for the same untyped dashboard status
// string, so a task the coordinator itself marked done is never
// reselected.
var terminalTaskStatuses = map[string]bool{
	"done": true, "closed": true, "resolved": true, "completed": true,
}

var inFlightTaskStatuses = map[string]bool{
	TaskStatusInProgress: true,
	TaskStatusInReview:   true,
}

// selectable reports whether a task in this status is eligible for
// SelectTask to pick up: neither already finished, already being worked,
// nor explicitly blocked.
func selectable(status string) bool {
	s := strings.ToLower(strings.TrimSpace(status))
	if s == "" {
		return true
	}
	if terminalTaskStatuses[s] || inFlightTaskStatuses[s] || s == TaskStatusBlocked {
		return false
	}
	return true
}
