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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/security"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// diffOp is one entry of a structured diff_apply payload.
type diffOp struct {
	Action  string `json:"action"`
	Path    string `json:"path"`
	Content string `json:"content"`
}

// RegisterDiffApply adds the "diff_apply" step type: applies either a raw
// unified-diff text payload or a structured {ops:[{action,path,content}]}
// payload to the working tree and returns the changed paths. Config:
//
//	diff (string) - raw unified diff text, mutually exclusive with ops.
//	ops ([]map) - structured operations: {action: "upsert"|"delete", path, content}.
func RegisterDiffApply(reg *workflow.Registry, deps Deps) {
	reg.Register("diff_apply", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		if rawOps, ok := cfg["ops"].([]interface{}); ok && len(rawOps) > 0 {
			ops, err := parseOps(rawOps)
			if err != nil {
				return workflow.StepOutput{}, err
			}
			changed, err := applyOps(wctx.RepoRoot, ops)
			if err != nil {
				return workflow.StepOutput{}, err
			}
			return workflow.StepOutput{Data: map[string]interface{}{"changed_paths": changed}}, nil
		}

		diffText := configString(cfg, "diff", "")
		if diffText == "" {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "diff", Message: "diff_apply requires either ops or diff"}
		}
		changed, err := applyUnifiedDiff(wctx.RepoRoot, diffText)
		if err != nil {
			return workflow.StepOutput{}, err
		}
		return workflow.StepOutput{Data: map[string]interface{}{"changed_paths": changed}}, nil
	})
}

func parseOps(raw []interface{}) ([]diffOp, error) {
	ops := make([]diffOp, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		op := diffOp{}
		op.Action, _ = m["action"].(string)
		op.Path, _ = m["path"].(string)
		op.Content, _ = m["content"].(string)
		if op.Path == "" {
			return nil, &maerrors.ValidationError{Field: "ops.path", Message: "diff_apply op missing a path"}
		}
		if op.Action != "upsert" && op.Action != "delete" {
			return nil, &maerrors.ValidationError{Field: "ops.action", Message: fmt.Sprintf("diff_apply op has unknown action %q", op.Action)}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// applyOps applies each structured op directly to repoRoot. For each
// upsert it also renders a unified diff via go-difflib and discards the
// result; nothing records or returns that diff.
func applyOps(repoRoot string, ops []diffOp) ([]string, error) {
	var changed []string
	for _, op := range ops {
		abs := filepath.Join(repoRoot, op.Path)
		if err := requireUnderRoot(repoRoot, abs); err != nil {
			return changed, err
		}

		switch op.Action {
		case "delete":
			if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
				return changed, err
			}
		case "upsert":
			before := ""
			if data, err := os.ReadFile(abs); err == nil {
				before = string(data)
			}
			_, _ = difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
				A:        difflib.SplitLines(before),
				B:        difflib.SplitLines(op.Content),
				FromFile: op.Path,
				ToFile:   op.Path,
				Context:  3,
			})
			fileMode, dirMode := security.DeterminePermissions(abs)
			if err := os.MkdirAll(filepath.Dir(abs), dirMode); err != nil {
				return changed, err
			}
			if err := os.WriteFile(abs, []byte(op.Content), fileMode); err != nil {
				return changed, err
			}
		}
		changed = append(changed, op.Path)
	}
	return changed, nil
}

func requireUnderRoot(root, path string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &maerrors.PolicyViolation{Rule: "path_escape", Detail: fmt.Sprintf("diff_apply target %q escapes the repository root", path)}
	}
	return nil
}

// applyUnifiedDiff applies a standard unified diff (as produced by `git
// diff` or go-difflib) to the files under repoRoot. It supports the
// common single-file-per-header, multi-hunk form: "--- a/path", "+++
// b/path", then one or more "@@ ... @@" hunks of context/added/removed
// lines.
func applyUnifiedDiff(repoRoot, diffText string) ([]string, error) {
	files := splitDiffByFile(diffText)
	var changed []string
	for _, f := range files {
		path := f.newPath
		if path == "" || path == "/dev/null" {
			path = f.oldPath
		}
		path = strings.TrimPrefix(strings.TrimPrefix(path, "a/"), "b/")
		abs := filepath.Join(repoRoot, path)
		if err := requireUnderRoot(repoRoot, abs); err != nil {
			return changed, err
		}

		original := ""
		if data, err := os.ReadFile(abs); err == nil {
			original = string(data)
		}
		patched, err := applyHunks(original, f.hunks)
		if err != nil {
			return changed, fmt.Errorf("apply diff to %s: %w", path, err)
		}
		fileMode, dirMode := security.DeterminePermissions(abs)
		if err := os.MkdirAll(filepath.Dir(abs), dirMode); err != nil {
			return changed, err
		}
		if err := os.WriteFile(abs, []byte(patched), fileMode); err != nil {
			return changed, err
		}
		changed = append(changed, path)
	}
	return changed, nil
}

type diffFile struct {
	oldPath string
	newPath string
	hunks   []string
}

func splitDiffByFile(diffText string) []diffFile {
	var files []diffFile
	var current *diffFile
	var hunkLines []string
	flushHunk := func() {
		if current != nil && len(hunkLines) > 0 {
			current.hunks = append(current.hunks, strings.Join(hunkLines, "\n"))
			hunkLines = nil
		}
	}
	flushFile := func() {
		flushHunk()
		if current != nil {
			files = append(files, *current)
		}
	}

	for _, line := range strings.Split(diffText, "\n") {
		switch {
		case strings.HasPrefix(line, "--- "):
			flushFile()
			current = &diffFile{oldPath: strings.TrimSpace(strings.TrimPrefix(line, "--- "))}
		case strings.HasPrefix(line, "+++ "):
			if current != nil {
				current.newPath = strings.TrimSpace(strings.TrimPrefix(line, "+++ "))
			}
		case strings.HasPrefix(line, "@@"):
			flushHunk()
			hunkLines = append(hunkLines, line)
		default:
			if hunkLines != nil {
				hunkLines = append(hunkLines, line)
			}
		}
	}
	flushFile()
	return files
}

// applyHunks applies a sequence of unified-diff hunks (each its own "@@
// ... @@" header plus body lines) to original's content in order.
func applyHunks(original string, hunks []string) (string, error) {
	lines := splitKeepEmpty(original)
	offset := 0
	for _, hunk := range hunks {
		hunkBody := strings.Split(hunk, "\n")
		if len(hunkBody) == 0 {
			continue
		}
		startLine, err := hunkStartLine(hunkBody[0])
		if err != nil {
			return "", err
		}
		pos := startLine - 1 + offset
		if pos < 0 {
			pos = 0
		}

		var result []string
		result = append(result, lines[:pos]...)
		cursor := pos
		for _, body := range hunkBody[1:] {
			if body == "" {
				continue
			}
			switch body[0] {
			case ' ':
				result = append(result, body[1:])
				cursor++
			case '-':
				cursor++
			case '+':
				result = append(result, body[1:])
			}
		}
		if cursor <= len(lines) {
			result = append(result, lines[cursor:]...)
		}
		lines = result
		offset = 0
	}
	return strings.Join(lines, "\n"), nil
}

func hunkStartLine(header string) (int, error) {
	// "@@ -12,5 +14,6 @@" -> the new-file start line is what positions
	// the hunk in the file being rewritten.
	parts := strings.Fields(header)
	for _, p := range parts {
		if strings.HasPrefix(p, "+") {
			spec := strings.TrimPrefix(p, "+")
			spec = strings.SplitN(spec, ",", 2)[0]
			var n int
			if _, err := fmt.Sscanf(spec, "%d", &n); err != nil {
				return 0, fmt.Errorf("malformed hunk header %q", header)
			}
			return n, nil
		}
	}
	return 0, fmt.Errorf("malformed hunk header %q", header)
}

func splitKeepEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
