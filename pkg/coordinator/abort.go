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
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/maflow/orchestrator/pkg/persona"
	"github.com/maflow/orchestrator/pkg/security"
	"github.com/maflow/orchestrator/pkg/transport"
	"github.com/maflow/orchestrator/pkg/workflow"
)

const (
	cleanupScanBatchSize   = 200
	cleanupDeleteBatchSize = 50
	cleanupMaxScanRounds   = 200
)

// diagnosticSnapshot is the persisted record of an aborted workflow run,
// written under .ma/diagnostics/ so a human can inspect what happened
// without replaying the run.
type diagnosticSnapshot struct {
	WorkflowID     string                   `json:"workflow_id"`
	FailedStep     string                   `json:"failed_step"`
	AbortReason    string                   `json:"abort_reason"`
	CompletedSteps []workflow.CompletedStep `json:"completed_steps"`
	Variables      map[string]interface{}   `json:"variables"`
	DiagnosticLog  []string                 `json:"diagnostic_log"`
	WrittenAt      string                   `json:"written_at"`
}

// AbortResult is what handleAbort leaves behind for the structured abort
// log line: where the diagnostic snapshot landed and whether stream
// cleanup itself failed.
type AbortResult struct {
	DiagnosticPath string
	CleanupError   error
}

// handleAbort runs the full abort pipeline for an aborted run: persist a
// diagnostic snapshot, purge any in-flight persona requests still
// outstanding for this workflow, and log the outcome with enough
// structure (workflow_id, reason, failed_step, cleanup_result) for an
// operator to act on without re-reading the run.
func (c *Coordinator) handleAbort(ctx context.Context, wctx *workflow.Context) AbortResult {
	path, err := c.writeDiagnosticSnapshot(wctx)
	if err != nil {
		c.cfg.Logger.Error("failed to write diagnostic snapshot", "workflow_id", wctx.WorkflowID, "error", err)
	}

	cleanupErr := c.cleanupWorkflowStreams(ctx, wctx.WorkflowID)
	cleanupResult := "ok"
	if cleanupErr != nil {
		cleanupResult = cleanupErr.Error()
	}

	c.cfg.Logger.Error("workflow aborted",
		"workflow_id", wctx.WorkflowID,
		"failed_step", wctx.FailedStep(),
		"reason", wctx.AbortReason(),
		"diagnostic_path", path,
		"cleanup_result", cleanupResult,
	)

	return AbortResult{DiagnosticPath: path, CleanupError: cleanupErr}
}

func (c *Coordinator) writeDiagnosticSnapshot(wctx *workflow.Context) (string, error) {
	snap := diagnosticSnapshot{
		WorkflowID:     wctx.WorkflowID,
		FailedStep:     wctx.FailedStep(),
		AbortReason:    wctx.AbortReason(),
		CompletedSteps: wctx.CompletedSteps(),
		Variables:      wctx.Variables(),
		DiagnosticLog:  wctx.DiagnosticLog(),
		WrittenAt:      time.Now().UTC().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}

	repoRoot := wctx.RepoRoot
	dir := filepath.Join(repoRoot, ".ma", "diagnostics")
	path := filepath.Join(dir, wctx.WorkflowID+".json")

	fileMode, dirMode := security.DeterminePermissions(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", err
	}
	sec := security.NewArtifactFileSecurityConfig(repoRoot)
	if err := sec.WriteFileAtomic(path, data, fileMode); err != nil {
		return "", err
	}
	return path, nil
}

// cleanupWorkflowStreams purges any request-stream entries still
// outstanding for workflowID, for every persona configured on this
// coordinator. Bails immediately (a no-op, not an error) if the
// transport cannot satisfy a range scan.
func (c *Coordinator) cleanupWorkflowStreams(ctx context.Context, workflowID string) error {
	if !transport.SupportsRange(c.cfg.Transport) {
		return nil
	}

	for _, personaName := range c.cfg.Personas {
		// Mirrors Dispatcher.requestStream's private naming exactly
		// ("<prefix>:<persona>"); the dispatcher does not expose a public
		// accessor since only abort cleanup needs the name from outside
		// the package.
		stream := c.cfg.Dispatcher.Config.RequestStreamPrefix + ":" + personaName
		groups := c.cfg.PersonaGroups[personaName]
		if len(groups) == 0 {
			groups = []string{personaName}
		}
		if err := c.purgeStream(ctx, stream, groups, workflowID); err != nil {
			return err
		}
	}
	return nil
}

// PurgeAllStreams unconditionally deletes every entry on every configured
// persona's request stream, regardless of which workflow it belongs to.
// This backs the CLI's --nuke mode: an operator-invoked emergency reset
// that does not try to distinguish stale entries from live ones.
func (c *Coordinator) PurgeAllStreams(ctx context.Context) error {
	if !transport.SupportsRange(c.cfg.Transport) {
		return nil
	}
	for _, personaName := range c.cfg.Personas {
		stream := c.cfg.Dispatcher.Config.RequestStreamPrefix + ":" + personaName
		groups := c.cfg.PersonaGroups[personaName]
		if len(groups) == 0 {
			groups = []string{personaName}
		}
		if err := c.purgeStream(ctx, stream, groups, ""); err != nil {
			return err
		}
	}
	return nil
}

// purgeStream removes every entry on stream whose workflow_id field
// matches workflowID, acking it for every known consumer group first. An
// empty workflowID matches every entry regardless of its workflow_id,
// which is how PurgeAllStreams reuses this same scan-and-delete loop for
// --nuke. Bounded to cleanupMaxScanRounds full rescans so a pathologically
// busy stream cannot hang abort cleanup forever; since Del shrinks the
// stream, a fresh "-".."+"-scan each round naturally converges once the
// matching entries are gone.
func (c *Coordinator) purgeStream(ctx context.Context, stream string, groups []string, workflowID string) error {
	for round := 0; round < cleanupMaxScanRounds; round++ {
		entries, err := c.cfg.Transport.Range(ctx, stream, "-", "+", cleanupScanBatchSize)
		if err != nil {
			if errors.Is(err, transport.ErrRangeUnsupported) {
				return nil
			}
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		var matchIDs []string
		for _, e := range entries {
			if workflowID == "" || e.Fields[persona.FieldWorkflowID] == workflowID {
				matchIDs = append(matchIDs, e.ID)
			}
		}
		if len(matchIDs) == 0 {
			// Nothing in this batch belongs to the aborted workflow; a
			// later batch might still hold matches, but without an
			// ordered cursor we cannot safely tell apart "done" from
			// "more to see" here, so stop rather than spin on someone
			// else's traffic.
			return nil
		}

		for i := 0; i < len(matchIDs); i += cleanupDeleteBatchSize {
			end := i + cleanupDeleteBatchSize
			if end > len(matchIDs) {
				end = len(matchIDs)
			}
			batch := matchIDs[i:end]
			for _, group := range groups {
				for _, id := range batch {
					_ = c.cfg.Transport.Ack(ctx, stream, group, id)
				}
			}
			if err := c.cfg.Transport.Del(ctx, stream, batch); err != nil {
				return err
			}
		}
	}
	return nil
}
