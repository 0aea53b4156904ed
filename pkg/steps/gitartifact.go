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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/security"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// RegisterGitArtifact adds the "git_artifact" step type: renders
// source_output (optionally narrowed to one nested field) to markdown or
// JSON, writes it under .ma/ (refusing any path that would escape it),
// commits with commit_message, and pushes best-effort. Config:
//
//	source_output (any) - the value to render.
//	field (string, optional) - a dotted path into source_output to
//	  extract before rendering, when source_output is a nested map.
//	path (string, required) - destination relative to the repo root;
//	  must resolve under .ma/.
//	format ("markdown"|"json", default "markdown").
//	commit_message (string, required).
//	expected_branch (string, optional) - if set, the working copy's
//	  current branch must match exactly or the step fails hard.
func RegisterGitArtifact(reg *workflow.Registry, deps Deps) {
	reg.Register("git_artifact", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		expectedBranch := configString(cfg, "expected_branch", "")
		if expectedBranch != "" && deps.Git != nil {
			current, err := deps.Git.CurrentBranch(ctx)
			if err != nil {
				return workflow.StepOutput{}, err
			}
			if current != expectedBranch {
				return workflow.StepOutput{}, &maerrors.PolicyViolation{
					Rule:   "branch_mismatch",
					Detail: fmt.Sprintf("git_artifact expected branch %q, working copy is on %q", expectedBranch, current),
				}
			}
		}

		relPath := configString(cfg, "path", "")
		if relPath == "" {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "path", Message: "git_artifact requires a destination path"}
		}
		commitMessage := configString(cfg, "commit_message", "")
		if commitMessage == "" {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "commit_message", Message: "git_artifact requires a commit_message"}
		}

		value := cfg["source_output"]
		if field := configString(cfg, "field", ""); field != "" {
			value = extractField(value, field)
		}

		format := configString(cfg, "format", "markdown")
		var rendered []byte
		switch format {
		case "json":
			b, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return workflow.StepOutput{}, err
			}
			rendered = b
		default:
			rendered = []byte(renderMarkdown(value))
		}

		absPath := filepath.Join(wctx.RepoRoot, relPath)
		if err := security.ValidateArtifactPath(wctx.RepoRoot, absPath); err != nil {
			return workflow.StepOutput{}, &maerrors.PolicyViolation{Rule: "path_escape", Detail: err.Error()}
		}

		sec := security.NewArtifactFileSecurityConfig(wctx.RepoRoot)
		fileMode, dirMode := security.DeterminePermissions(absPath)
		if err := os.MkdirAll(filepath.Dir(absPath), dirMode); err != nil {
			return workflow.StepOutput{}, err
		}
		if err := sec.WriteFileAtomic(absPath, rendered, fileMode); err != nil {
			return workflow.StepOutput{}, err
		}

		if deps.Git != nil {
			sha, err := deps.Git.Commit(ctx, commitMessage, []string{relOrAbs(wctx.RepoRoot, absPath)})
			if err != nil {
				return workflow.StepOutput{}, err
			}
			_ = deps.Git.Push(ctx, wctx.Branch)
			return workflow.StepOutput{Data: map[string]interface{}{"path": relPath, "bytes": len(rendered), "commit": sha}}, nil
		}

		return workflow.StepOutput{Data: map[string]interface{}{"path": relPath, "bytes": len(rendered)}}, nil
	})
}

// extractField reads a dotted path (e.g. "analysis.summary") out of
// value, assuming it is (or nests into) map[string]interface{}. A missing
// segment returns nil rather than erroring, so a misconfigured field
// degrades to writing an empty artifact instead of aborting the workflow.
func extractField(value interface{}, field string) interface{} {
	current := value
	for _, segment := range strings.Split(field, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[segment]
	}
	return current
}

// renderMarkdown renders an arbitrary step-output value as a simple
// markdown document: a string is written verbatim, a map is rendered as
// a sorted key/value list, anything else falls back to its Go value
// formatting.
func renderMarkdown(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&b, "## %s\n\n%v\n\n", k, v[k])
		}
		return b.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v\n", v)
	}
}
