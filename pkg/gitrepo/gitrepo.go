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

// Package gitrepo is the Git working-copy contract the coordinator and
// GitArtifactStep depend on. Branch, commit, push and diff semantics
// are deliberately narrow; this package models the contract as a Go
// interface plus a thin exec.Command implementation, so the rest of
// the tree has something concrete to build and test against.
package gitrepo

import "context"

// WorkingCopy is the single-writer-per-workflow Git contract the
// coordinator's branch preparation and GitArtifactStep use.
type WorkingCopy interface {
	// CurrentBranch returns the checked-out branch name.
	CurrentBranch(ctx context.Context) (string, error)

	// CreateBranch creates branch from baseBranch if it does not already
	// exist, and checks it out.
	CreateBranch(ctx context.Context, branch, baseBranch string) error

	// Checkout switches the working copy to an existing branch.
	Checkout(ctx context.Context, branch string) error

	// Push publishes branch to the configured remote, best-effort: a
	// failure here does not fail the caller's operation.
	Push(ctx context.Context, branch string) error

	// Commit stages paths (relative to the repo root) and commits them
	// with message. Returns the new commit SHA.
	Commit(ctx context.Context, message string, paths []string) (string, error)

	// Diff returns the unified diff between base and head (either may be
	// "" to mean the working tree).
	Diff(ctx context.Context, base, head string) (string, error)

	// Root returns the working copy's filesystem root.
	Root() string
}
