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

import "github.com/maflow/orchestrator/pkg/review"

// RouteMilestone picks the milestone id a follow-up task targets: urgent
// tasks go to the parent milestone (falling back to the backlog milestone
// with a warning if the parent is unknown); everything else goes to the
// backlog milestone directly.
func RouteMilestone(priority review.Priority, parentMilestoneID, backlogMilestoneID string) (milestoneID string, warning string) {
	if !priority.IsUrgent() {
		return backlogMilestoneID, ""
	}
	if parentMilestoneID != "" {
		return parentMilestoneID, ""
	}
	return backlogMilestoneID, "urgent follow-up has no parent milestone; routed to backlog"
}
