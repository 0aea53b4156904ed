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

// Package taskcreation turns a PM decision's follow-up tasks into
// dashboard task creation calls: priority scoring, milestone routing,
// title/label normalization, duplicate detection, and idempotent,
// retried bulk creation.
package taskcreation

import (
	"strings"

	"github.com/maflow/orchestrator/pkg/review"
)

const (
	// ScoreQAUrgent is the priority score for a critical/high follow-up
	// raised by (or labeled as) a QA review failure.
	ScoreQAUrgent = 1200
	// ScoreOtherUrgent is the priority score for any other critical/high
	// follow-up.
	ScoreOtherUrgent = 1000
	// ScoreNormal is the priority score for medium/low follow-ups.
	ScoreNormal = 50
)

// PriorityScore computes a follow-up task's numeric priority_score from
// its tier. title is consulted only for the "[QA]" marker
// fallback, since a follow-up can be routed as a QA issue even when
// reviewType itself isn't "qa" (e.g. a PM-authored follow-up that quotes
// the original QA failure in its title).
func PriorityScore(priority review.Priority, reviewType, title string) int {
	if !priority.IsUrgent() {
		return ScoreNormal
	}
	if reviewType == "qa" || strings.Contains(strings.ToUpper(title), "[QA]") {
		return ScoreQAUrgent
	}
	return ScoreOtherUrgent
}
