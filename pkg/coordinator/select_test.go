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
	"testing"

	"github.com/maflow/orchestrator/pkg/dashboard"
)

func TestSelectTask_HighestPriorityScoreWins(t *testing.T) {
	tasks := []dashboard.Task{
		{ID: "a", Status: "open", PriorityScore: 50},
		{ID: "b", Status: "open", PriorityScore: 1200},
		{ID: "c", Status: "open", PriorityScore: 100},
	}

	picked, ok := SelectTask(tasks)
	if !ok || picked.ID != "b" {
		t.Fatalf("expected task b, got %#v ok=%v", picked, ok)
	}
}

func TestSelectTask_TiesBrokenByStatusRank(t *testing.T) {
	tasks := []dashboard.Task{
		{ID: "a", Status: "backlog", PriorityScore: 100},
		{ID: "b", Status: "urgent", PriorityScore: 100},
		{ID: "c", Status: "open", PriorityScore: 100},
	}

	picked, ok := SelectTask(tasks)
	if !ok || picked.ID != "b" {
		t.Fatalf("expected task b (urgent ranks first), got %#v ok=%v", picked, ok)
	}
}

func TestSelectTask_TiesBrokenByMetadataOrder(t *testing.T) {
	tasks := []dashboard.Task{
		{ID: "a", Status: "open", PriorityScore: 100, Metadata: map[string]interface{}{"order": 2.0}},
		{ID: "b", Status: "open", PriorityScore: 100, Metadata: map[string]interface{}{"order": 1.0}},
	}

	picked, ok := SelectTask(tasks)
	if !ok || picked.ID != "b" {
		t.Fatalf("expected task b (lower order), got %#v ok=%v", picked, ok)
	}
}

func TestSelectTask_FinalTieBrokenByID(t *testing.T) {
	tasks := []dashboard.Task{
		{ID: "zeta", Status: "open", PriorityScore: 100},
		{ID: "alpha", Status: "open", PriorityScore: 100},
	}

	picked, ok := SelectTask(tasks)
	if !ok || picked.ID != "alpha" {
		t.Fatalf("expected task alpha, got %#v ok=%v", picked, ok)
	}
}

func TestSelectTask_SkipsInFlightDoneAndBlocked(t *testing.T) {
	tasks := []dashboard.Task{
		{ID: "a", Status: "in_progress", PriorityScore: 1000},
		{ID: "b", Status: "done", PriorityScore: 1000},
		{ID: "c", Status: "blocked", PriorityScore: 1000},
		{ID: "d", Status: "open", PriorityScore: 10},
	}

	picked, ok := SelectTask(tasks)
	if !ok || picked.ID != "d" {
		t.Fatalf("expected task d (only selectable task), got %#v ok=%v", picked, ok)
	}
}

func TestSelectTask_NoneLeftReturnsFalse(t *testing.T) {
	tasks := []dashboard.Task{
		{ID: "a", Status: "done"},
		{ID: "b", Status: "in_review"},
	}

	_, ok := SelectTask(tasks)
	if ok {
		t.Fatalf("expected no selectable task")
	}
}
