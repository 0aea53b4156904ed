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
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
)

// ExecWorkingCopy implements WorkingCopy by shelling out to the git
// binary against a checkout rooted at Dir, wrapping the external process
// behind a narrow interface (see pkg/security's shell-command guards)
// rather than linking a Git library in-process.
type ExecWorkingCopy struct {
	Dir    string
	Remote string
}

// NewExecWorkingCopy returns a WorkingCopy rooted at dir, pushing to
// remote (e.g. "origin") when Push is called.
func NewExecWorkingCopy(dir, remote string) *ExecWorkingCopy {
	if remote == "" {
		remote = "origin"
	}
	return &ExecWorkingCopy{Dir: dir, Remote: remote}
}

func (w *ExecWorkingCopy) Root() string { return w.Dir }

func (w *ExecWorkingCopy) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = w.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &maerrors.ExternalError{
			Service: "git",
			Message: fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), strings.TrimSpace(stderr.String())),
			Cause:   err,
		}
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (w *ExecWorkingCopy) CurrentBranch(ctx context.Context) (string, error) {
	return w.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

func (w *ExecWorkingCopy) CreateBranch(ctx context.Context, branch, baseBranch string) error {
	existing, err := w.run(ctx, "branch", "--list", branch)
	if err != nil {
		return err
	}
	if existing != "" {
		return w.Checkout(ctx, branch)
	}
	_, err = w.run(ctx, "checkout", "-b", branch, baseBranch)
	return err
}

func (w *ExecWorkingCopy) Checkout(ctx context.Context, branch string) error {
	_, err := w.run(ctx, "checkout", branch)
	return err
}

// Push is best-effort: a failure is returned to the caller, but callers
// of Push in this codebase (GitArtifactStep, coordinator branch
// preparation) treat it as non-fatal.
func (w *ExecWorkingCopy) Push(ctx context.Context, branch string) error {
	_, err := w.run(ctx, "push", "-u", w.Remote, branch)
	return err
}

func (w *ExecWorkingCopy) Commit(ctx context.Context, message string, paths []string) (string, error) {
	args := append([]string{"add"}, paths...)
	if _, err := w.run(ctx, args...); err != nil {
		return "", err
	}
	if _, err := w.run(ctx, "commit", "-m", message); err != nil {
		return "", err
	}
	return w.run(ctx, "rev-parse", "HEAD")
}

func (w *ExecWorkingCopy) Diff(ctx context.Context, base, head string) (string, error) {
	args := []string{"diff"}
	switch {
	case base != "" && head != "":
		args = append(args, base+".."+head)
	case base != "":
		args = append(args, base)
	}
	return w.run(ctx, args...)
}
