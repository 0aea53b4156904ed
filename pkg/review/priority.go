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

package review

import "strings"

// NormalizePriority maps a follow-up task's free-form priority wording
// into the closed {critical, high, medium, low} set via keyword matching.
// Unrecognized input defaults to medium rather than failing, since a
// follow-up task missing only its priority should still be created.
func NormalizePriority(raw string) Priority {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case containsAny(lower, "critical", "urgent", "blocker", "p0", "sev1", "sev-1"):
		return PriorityCritical
	case containsAny(lower, "high", "important", "p1", "sev2", "sev-2"):
		return PriorityHigh
	case containsAny(lower, "low", "minor", "p3", "nice to have", "nice-to-have"):
		return PriorityLow
	case containsAny(lower, "medium", "moderate", "p2"):
		return PriorityMedium
	default:
		return PriorityMedium
	}
}

// IsUrgent reports whether p is urgent enough for the priority-tier rules
// in the task creation pipeline: critical and high are urgent, the rest
// are not.
func (p Priority) IsUrgent() bool {
	return p == PriorityCritical || p == PriorityHigh
}
