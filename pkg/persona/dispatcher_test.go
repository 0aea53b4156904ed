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

package persona

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/security"
	"github.com/maflow/orchestrator/pkg/transport"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RequestStreamPrefix = "req"
	cfg.EventStreamPrefix = "evt"
	return cfg
}

func newTestDispatcher(cfg Config) (*Dispatcher, *transport.Memory) {
	tr := transport.NewMemory()
	d := NewDispatcher(tr, cfg, security.DefaultHTTPSecurityConfig(), nil)
	return d, tr
}

// respondTo reads the next pending request on toPersona's stream under a
// private consumer group and appends a matching event with the given
// status/result, simulating one turn of an external persona worker.
func respondTo(t *testing.T, tr *transport.Memory, cfg Config, toPersona, status, result string) string {
	t.Helper()
	ctx := context.Background()
	stream := cfg.RequestStreamPrefix + ":" + toPersona
	group := "sim-" + toPersona
	if err := tr.CreateGroup(ctx, stream, group, "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	entries, err := tr.ReadGroup(ctx, stream, group, "sim", 1, 2000)
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected a pending persona request")
	}
	corrID := entries[0].Fields[FieldCorrID]
	tr.Ack(ctx, stream, group, entries[0].ID)

	if _, err := tr.Append(ctx, cfg.EventStreamPrefix+":events", map[string]string{
		FieldWorkflowID:  entries[0].Fields[FieldWorkflowID],
		FieldStep:        entries[0].Fields[FieldStep],
		FieldCorrID:      corrID,
		FieldFromPersona: toPersona,
		FieldStatus:      status,
		FieldResult:      result,
		FieldTS:          "0",
	}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	return corrID
}

// drainRequest reads and acks one pending request without answering it,
// simulating an attempt that never gets a persona response.
func drainRequest(t *testing.T, tr *transport.Memory, cfg Config, toPersona string) {
	t.Helper()
	ctx := context.Background()
	stream := cfg.RequestStreamPrefix + ":" + toPersona
	group := "sim-" + toPersona
	if err := tr.CreateGroup(ctx, stream, group, "0"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	entries, err := tr.ReadGroup(ctx, stream, group, "sim", 1, 2000)
	if err != nil {
		t.Fatalf("read group: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected a pending persona request to drain")
	}
	tr.Ack(ctx, stream, group, entries[0].ID)
}

func TestDispatcher_HappyPath(t *testing.T) {
	cfg := testConfig()
	d, tr := newTestDispatcher(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	done := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := d.Request(context.Background(), Request{
			ToPersona: "engineer",
			TaskID:    "task-1",
			Payload:   map[string]interface{}{"x": 1},
		}, nil)
		done <- res
		errCh <- err
	}()

	respondTo(t, tr, cfg, "engineer", string(EventStatusDone), "all good")

	select {
	case res := <-done:
		require.NoError(t, <-errCh)
		require.Equal(t, "all good", res.Event.Result)
		require.Equal(t, 1, res.Attempts)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for Request to return")
	}
}

func TestDispatcher_LanguagePolicyShortCircuitsWithoutSending(t *testing.T) {
	cfg := testConfig()
	cfg.Personas = map[string]PersonaConfig{
		"reviewer": {DefaultTimeoutMS: 1000, MaxRetries: 0, AllowedLanguages: []string{"go"}},
	}
	d, tr := newTestDispatcher(cfg)

	_, err := d.Request(context.Background(), Request{ToPersona: "reviewer", TaskID: "task-1"}, []string{"main.py"})
	require.Error(t, err, "expected a language policy violation")
	var pv *maerrors.PolicyViolation
	require.True(t, asPolicyViolation(err, &pv), "expected a PolicyViolation, got %T: %v", err, err)

	n, _ := tr.Len(context.Background(), cfg.RequestStreamPrefix+":reviewer")
	require.Zero(t, n, "expected no request to be sent")
}

func asPolicyViolation(err error, target **maerrors.PolicyViolation) bool {
	if pv, ok := err.(*maerrors.PolicyViolation); ok {
		*target = pv
		return true
	}
	return false
}

func TestDispatcher_RetryOnTimeoutGrowsBaselineAndSucceeds(t *testing.T) {
	cfg := testConfig()
	cfg.Personas = map[string]PersonaConfig{
		"engineer": {DefaultTimeoutMS: 50, MaxRetries: 1, RetryBackoffIncrementMS: 25},
	}
	d, tr := newTestDispatcher(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := d.Request(context.Background(), Request{ToPersona: "engineer", TaskID: "task-1"}, nil)
		resCh <- res
		errCh <- err
	}()

	// Let the first attempt time out unanswered (drain it without a
	// response so it doesn't satisfy the retry's wait), then answer the
	// retried attempt.
	time.Sleep(100 * time.Millisecond)
	drainRequest(t, tr, cfg, "engineer")
	respondTo(t, tr, cfg, "engineer", string(EventStatusDone), "second try")

	select {
	case res := <-resCh:
		require.NoError(t, <-errCh)
		require.Equal(t, 2, res.Attempts)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for retried Request to return")
	}
}

func TestDispatcher_ExhaustsRetriesAndReturnsPersonaError(t *testing.T) {
	cfg := testConfig()
	cfg.Personas = map[string]PersonaConfig{
		"engineer": {DefaultTimeoutMS: 20, MaxRetries: 1, RetryBackoffIncrementMS: 10},
	}
	d, _ := newTestDispatcher(cfg)

	_, err := d.Request(context.Background(), Request{ToPersona: "engineer", TaskID: "task-1"}, nil)
	require.Error(t, err, "expected an error after exhausting retries")
	_, ok := err.(*maerrors.PersonaError)
	require.True(t, ok, "expected a PersonaError, got %T: %v", err, err)
}

func TestDispatcher_InformationRequestLoopResolvesRepoFileThenCompletes(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("line one\nline two\n"), 0o644)

	cfg := testConfig()
	d, tr := newTestDispatcher(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := d.Request(context.Background(), Request{ToPersona: "engineer", TaskID: "task-1", Repo: dir}, nil)
		resCh <- res
		errCh <- err
	}()

	infoPayload, _ := json.Marshal(map[string]interface{}{
		"status":   "info_request",
		"requests": []map[string]interface{}{{"repo_file": "notes.txt"}},
	})
	respondTo(t, tr, cfg, "engineer", string(EventStatusDone), string(infoPayload))
	respondTo(t, tr, cfg, "engineer", string(EventStatusDone), "final answer")

	select {
	case res := <-resCh:
		require.NoError(t, <-errCh)
		require.Equal(t, "final answer", res.Event.Result)
		require.Equal(t, 1, res.InformationRequestSources)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for information-request loop to resolve")
	}
}

func TestDispatcher_InformationRequestLoopBoundedByMaxIterations(t *testing.T) {
	cfg := testConfig()
	cfg.MaxInformationIterations = 1
	d, tr := newTestDispatcher(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	resCh := make(chan *Result, 1)
	errCh := make(chan error, 1)
	go func() {
		res, err := d.Request(context.Background(), Request{ToPersona: "engineer", TaskID: "task-1", Repo: t.TempDir()}, nil)
		resCh <- res
		errCh <- err
	}()

	infoPayload, _ := json.Marshal(map[string]interface{}{
		"status":   "info_request",
		"requests": []map[string]interface{}{{"repo_file": "missing.txt"}},
	})
	// The missing file resolves with an error block but does not itself
	// stop the loop; two info_request rounds in a row should exceed
	// MaxInformationIterations(1) on the second round's check.
	respondTo(t, tr, cfg, "engineer", string(EventStatusDone), string(infoPayload))
	respondTo(t, tr, cfg, "engineer", string(EventStatusDone), string(infoPayload))

	select {
	case <-resCh:
		require.Error(t, <-errCh, "expected an error once max_information_iterations is exceeded")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for bounded information-request loop")
	}
}
