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

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Make API":          "make-api",
		"  Fix the Thing!! ": "fix-the-thing",
		"already-a-slug":     "already-a-slug",
		"???":                "task",
	}
	for input, want := range cases {
		if got := Slugify(input); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSelectBranch_PayloadBranchWins(t *testing.T) {
	got := SelectBranch("custom/branch", "make-api", "m1", "proj")
	if got != "custom/branch" {
		t.Fatalf("got %q", got)
	}
}

func TestSelectBranch_FallsBackToTaskSlug(t *testing.T) {
	got := SelectBranch("", "make-api", "m1", "proj")
	if got != "feat/make-api" {
		t.Fatalf("got %q", got)
	}
}

func TestSelectBranch_FallsBackToMilestoneSlug(t *testing.T) {
	got := SelectBranch("", "", "payments", "proj")
	if got != "milestone/payments" {
		t.Fatalf("got %q", got)
	}
}

func TestSelectBranch_SkipsGenericMilestoneSlug(t *testing.T) {
	got := SelectBranch("", "", "milestone", "proj")
	if got != "milestone/proj" {
		t.Fatalf("expected milestone/proj for a generic milestone slug, got %q", got)
	}
}

func TestSelectBranch_FallsBackToProjectSlugWhenNoMilestone(t *testing.T) {
	got := SelectBranch("", "", "", "proj")
	if got != "milestone/proj" {
		t.Fatalf("got %q", got)
	}
}
