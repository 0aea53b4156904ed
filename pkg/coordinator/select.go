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
	"sort"
	"strings"

	"github.com/maflow/orchestrator/pkg/dashboard"
)

// statusRank orders selectable task statuses by how urgently they deserve
// attention when two tasks tie on priority_score. Statuses not listed
// here (most dashboards allow free-form columns) sort after every
// recognized one, tied with each other and left to SelectTask's
// remaining tie-breaks.
var statusRank = map[string]int{
	"urgent":  0,
	"ready":   1,
	"open":    2,
	"todo":    3,
	"backlog": 4,
}

func rankOfStatus(status string) int {
	if r, ok := statusRank[strings.ToLower(strings.TrimSpace(status))]; ok {
		return r
	}
	return len(statusRank)
}

// metadataOrder reads a task's explicit ordering hint, trying "order",
// then "position", then "rank" in that priority, as the first of the
// three present in Metadata.
func metadataOrder(m map[string]interface{}) (float64, bool) {
	for _, key := range []string{"order", "position", "rank"} {
		if v, ok := m[key]; ok {
			if n, ok := asFloat(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// SelectTask picks the next task to work from tasks, per the dashboard's
// priority-score-then-status-then-declared-order precedence: highest
// priority_score first; ties broken by status urgency; remaining ties
// broken by an explicit order/position/rank metadata hint (ascending,
// present-before-absent); final ties broken by task ID for a
// deterministic pick. Tasks already in flight, already finished, or
// blocked are never eligible. Returns (nil, false) if nothing qualifies.
func SelectTask(tasks []dashboard.Task) (*dashboard.Task, bool) {
	var candidates []dashboard.Task
	for _, t := range tasks {
		if selectable(t.Status) {
			candidates = append(candidates, t)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		ra, rb := rankOfStatus(a.Status), rankOfStatus(b.Status)
		if ra != rb {
			return ra < rb
		}
		oa, oka := metadataOrder(a.Metadata)
		ob, okb := metadataOrder(b.Metadata)
		if oka && okb && oa != ob {
			return oa < ob
		}
		if oka != okb {
			return oka
		}
		return a.ID < b.ID
	})

	picked := candidates[0]
	return &picked, true
}
