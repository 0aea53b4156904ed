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
	"testing"

	"github.com/maflow/orchestrator/pkg/dashboard"
)

func TestDependencyStatusStep_ClassifiesResolvedAndPending(t *testing.T) {
	dash := &fakeDashboard{tasks: []dashboard.Task{
		{ID: "t-1", Status: "done"},
		{ID: "t-2", Status: "in_progress"},
	}}
	wctx := newTestContext(t.TempDir())

	out, err := runStep(t, Deps{Dashboard: dash}, "dependency_status", map[string]interface{}{
		"blocked_dependencies": []interface{}{"t-1", "t-2", "t-missing"},
	}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	resolved, _ := out["resolved"].([]string)
	pending, _ := out["pending"].([]string)
	if len(resolved) != 1 || resolved[0] != "t-1" {
		t.Fatalf("expected only t-1 resolved, got %#v", resolved)
	}
	if len(pending) != 2 {
		t.Fatalf("expected t-2 and t-missing pending, got %#v", pending)
	}
	if out["allResolved"] != false {
		t.Fatalf("expected allResolved=false, got %#v", out)
	}
}

func TestDependencyStatusStep_NoDependenciesIsTriviallyResolved(t *testing.T) {
	dash := &fakeDashboard{}
	wctx := newTestContext(t.TempDir())

	out, err := runStep(t, Deps{Dashboard: dash}, "dependency_status", map[string]interface{}{}, wctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out["allResolved"] != true {
		t.Fatalf("expected allResolved=true with no dependencies, got %#v", out)
	}
}
