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

package gitrepo

import (
	"context"
	"testing"
)

func TestFake_CreateBranchSwitchesCurrentBranch(t *testing.T) {
	f := NewFake("/repo", "main")
	if err := f.CreateBranch(context.Background(), "feat/x", "main"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	branch, _ := f.CurrentBranch(context.Background())
	if branch != "feat/x" {
		t.Fatalf("expected current branch feat/x, got %q", branch)
	}
}

func TestFake_CheckoutUnknownBranchErrors(t *testing.T) {
	f := NewFake("/repo", "main")
	if err := f.Checkout(context.Background(), "does-not-exist"); err == nil {
		t.Fatal("expected an error checking out an unknown branch")
	}
}

func TestFake_CommitRecordsMessageAndPaths(t *testing.T) {
	f := NewFake("/repo", "main")
	sha, err := f.Commit(context.Background(), "update snapshot", []string{".ma/context/snapshot.json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sha == "" {
		t.Fatal("expected a non-empty commit sha")
	}
	if len(f.Commits) != 1 || f.Commits[0].Message != "update snapshot" {
		t.Fatalf("unexpected commits: %+v", f.Commits)
	}
}

func TestFake_PushRecordsBranchUnlessErrorIsSet(t *testing.T) {
	f := NewFake("/repo", "main")
	if err := f.Push(context.Background(), "main"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.Pushed) != 1 || f.Pushed[0] != "main" {
		t.Fatalf("unexpected pushed branches: %v", f.Pushed)
	}
}

func TestFake_PushReturnsConfiguredError(t *testing.T) {
	f := NewFake("/repo", "main")
	f.PushError = context.DeadlineExceeded
	if err := f.Push(context.Background(), "main"); err == nil {
		t.Fatal("expected the configured push error")
	}
}
