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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/maflow/orchestrator/pkg/security"
	"github.com/maflow/orchestrator/pkg/workflow"
)

var skippedDirs = map[string]bool{
	".git": true, ".ma": true, "node_modules": true, "vendor": true, ".svn": true,
}

type contextSnapshot struct {
	ScannedAt time.Time      `json:"scanned_at"`
	Totals    map[string]int `json:"totals"`
}

type fileRecord struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
	Lines int    `json:"lines"`
}

// RegisterContext adds the "context" step type: reuses a prior context
// scan when the persisted snapshot is still newer than every scanned
// source file, otherwise rescans the repository and writes
// .ma/context/{snapshot.json,summary.md,files.ndjson}, committing and
// pushing them on a best-effort basis.
//
// Config: force_rescan (bool).
func RegisterContext(reg *workflow.Registry, deps Deps) {
	reg.Register("context", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		forceRescan := configBool(cfg, "force_rescan", false)
		dir := filepath.Join(wctx.RepoRoot, ".ma", "context")
		snapshotPath := filepath.Join(dir, "snapshot.json")
		summaryPath := filepath.Join(dir, "summary.md")
		filesPath := filepath.Join(dir, "files.ndjson")

		if !forceRescan {
			if snap, ok := tryReuse(wctx.RepoRoot, snapshotPath, summaryPath, filesPath); ok {
				return workflow.StepOutput{Data: map[string]interface{}{
					"reused_existing": true,
					"snapshotPath":    snapshotPath,
					"summaryPath":     summaryPath,
					"filesNdjsonPath": filesPath,
					"totals":          snap.Totals,
				}}, nil
			}
		}

		records, err := scanRepo(wctx.RepoRoot)
		if err != nil {
			return workflow.StepOutput{}, err
		}

		totals := map[string]int{"files": len(records), "lines": 0}
		var ndjson bytes.Buffer
		for _, r := range records {
			totals["lines"] += r.Lines
			line, _ := json.Marshal(r)
			ndjson.Write(line)
			ndjson.WriteByte('\n')
		}

		snap := contextSnapshot{ScannedAt: time.Now().UTC(), Totals: totals}
		snapJSON, _ := json.MarshalIndent(snap, "", "  ")
		summary := renderContextSummary(totals, records)

		sec := security.NewArtifactFileSecurityConfig(wctx.RepoRoot)
		_, dirMode := security.DeterminePermissions(dir)
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return workflow.StepOutput{}, err
		}
		snapMode, _ := security.DeterminePermissions(snapshotPath)
		if err := sec.WriteFileAtomic(snapshotPath, snapJSON, snapMode); err != nil {
			return workflow.StepOutput{}, err
		}
		summaryMode, _ := security.DeterminePermissions(summaryPath)
		if err := sec.WriteFileAtomic(summaryPath, []byte(summary), summaryMode); err != nil {
			return workflow.StepOutput{}, err
		}
		filesMode, _ := security.DeterminePermissions(filesPath)
		if err := sec.WriteFileAtomic(filesPath, ndjson.Bytes(), filesMode); err != nil {
			return workflow.StepOutput{}, err
		}

		if deps.Git != nil {
			rel := []string{
				relOrAbs(wctx.RepoRoot, snapshotPath),
				relOrAbs(wctx.RepoRoot, summaryPath),
				relOrAbs(wctx.RepoRoot, filesPath),
			}
			if _, err := deps.Git.Commit(ctx, "update context snapshot", rel); err == nil {
				_ = deps.Git.Push(ctx, wctx.Branch)
			}
		}

		return workflow.StepOutput{Data: map[string]interface{}{
			"reused_existing": false,
			"snapshotPath":    snapshotPath,
			"summaryPath":     summaryPath,
			"filesNdjsonPath": filesPath,
			"totals":          totals,
		}}, nil
	})
}

func tryReuse(repoRoot, snapshotPath, summaryPath, filesPath string) (contextSnapshot, bool) {
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		return contextSnapshot{}, false
	}
	var snap contextSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return contextSnapshot{}, false
	}
	if _, err := os.Stat(summaryPath); err != nil {
		return contextSnapshot{}, false
	}
	if _, err := os.Stat(filesPath); err != nil {
		return contextSnapshot{}, false
	}

	stale := false
	_ = filepath.Walk(repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil || stale {
			return nil
		}
		if info.IsDir() {
			if skippedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if info.ModTime().After(snap.ScannedAt) {
			stale = true
		}
		return nil
	})
	if stale {
		return contextSnapshot{}, false
	}
	return snap, true
}

func scanRepo(repoRoot string) ([]fileRecord, error) {
	var records []fileRecord
	err := filepath.Walk(repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if skippedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(repoRoot, path)
		if relErr != nil {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		lines := 1
		if len(data) > 0 {
			lines = bytes.Count(data, []byte("\n")) + 1
		}
		records = append(records, fileRecord{Path: filepath.ToSlash(rel), Bytes: info.Size(), Lines: lines})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Path < records[j].Path })
	return records, nil
}

func renderContextSummary(totals map[string]int, records []fileRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Context snapshot\n\n")
	fmt.Fprintf(&b, "%d files, %d lines scanned.\n\n", totals["files"], totals["lines"])
	fmt.Fprintf(&b, "## Largest files\n\n")
	top := append([]fileRecord{}, records...)
	sort.Slice(top, func(i, j int) bool { return top[i].Lines > top[j].Lines })
	if len(top) > 10 {
		top = top[:10]
	}
	for _, r := range top {
		fmt.Fprintf(&b, "- %s (%d lines)\n", r.Path, r.Lines)
	}
	return b.String()
}

func relOrAbs(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return rel
	}
	return path
}
