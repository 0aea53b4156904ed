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
	"fmt"
	"net/http"
	"time"

	"github.com/maflow/orchestrator/internal/corrid"
	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/security"
	"github.com/maflow/orchestrator/pkg/transport"
)

// Dispatcher sends requests to persona workers over a Transport and waits
// for their matching event, end to end: send, wait, retry with growing
// timeouts, duplicate suppression, and the
// information-request sub-loop.
type Dispatcher struct {
	Transport    transport.Transport
	Config       Config
	HTTPSecurity *security.HTTPSecurityConfig
	HTTPClient   *http.Client

	waiters *waiterRegistry
	seen    *seenSet
}

// NewDispatcher constructs a Dispatcher ready to serve Request calls. Run
// must be started separately to pump events from the transport to waiters.
func NewDispatcher(tr transport.Transport, cfg Config, httpCfg *security.HTTPSecurityConfig, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Dispatcher{
		Transport:    tr,
		Config:       cfg,
		HTTPSecurity: httpCfg,
		HTTPClient:   httpClient,
		waiters:      newWaiterRegistry(),
		seen:         newSeenSet(cfg.SeenTTL),
	}
}

// eventStream is the single shared event stream all persona responses are
// appended to; the coordinator-group consumer (Run) fans incoming events
// out to whichever corr_id's waiter is registered.
func (d *Dispatcher) eventStream() string {
	return d.Config.EventStreamPrefix + ":events"
}

func (d *Dispatcher) requestStream(toPersona string) string {
	return d.Config.RequestStreamPrefix + ":" + toPersona
}

// Run consumes the event stream under the "<prefix>:coordinator" consumer
// group, delivering each event to its matching waiter and buffering (by
// simply continuing the loop; undelivered events are acked and dropped,
// since no caller is waiting on them) anything else, consuming from the
// coordinator-group consumer. It runs until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	stream := d.eventStream()
	group := d.Config.EventStreamPrefix + ":coordinator"
	if err := d.Transport.CreateGroup(ctx, stream, group, "$"); err != nil {
		return &maerrors.TransportError{Op: "create_group", Stream: stream, Cause: err}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := d.Transport.ReadGroup(ctx, stream, group, "coordinator-0", 32, int(transport.DefaultBlock/time.Millisecond))
		if err != nil {
			return &maerrors.TransportError{Op: "read_group", Stream: stream, Cause: err}
		}

		for _, e := range entries {
			event := eventFromFields(e.Fields)
			d.waiters.deliver(event)
			if err := d.Transport.Ack(ctx, stream, group, e.ID); err != nil {
				return &maerrors.TransportError{Op: "ack", Stream: stream, Cause: err}
			}
		}
	}
}

// Request sends req to its target persona and resolves the full
// request/response contract: the language-policy guard, send/wait,
// retry-on-timeout/error with a fresh corr_id and growing timeout each
// attempt, and the
// information-request sub-loop when the persona asks for more context.
// changedFiles is only consulted for reviewer personas with
// AllowedLanguages configured.
func (d *Dispatcher) Request(ctx context.Context, req Request, changedFiles []string) (*Result, error) {
	pc := d.Config.personaConfig(req.ToPersona)

	if violations := CheckLanguagePolicy(pc.AllowedLanguages, changedFiles); len(violations) > 0 {
		return nil, &maerrors.PolicyViolation{
			Rule:   "language_policy",
			Detail: fmt.Sprintf("persona %s: %d changed file(s) outside allowed_languages (first: %s)", req.ToPersona, len(violations), violations[0].File),
		}
	}

	timeoutMS := req.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = pc.DefaultTimeoutMS
	}

	var lastErr error
	attempts := 0
	sources := 0

	for attempt := 0; pc.MaxRetries == UnlimitedRetries || attempt <= pc.MaxRetries; attempt++ {
		attempts++
		if attempt > 0 {
			timeoutMS += pc.RetryBackoffIncrementMS
		}

		event, err := d.sendAndWait(ctx, req, timeoutMS)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if event.Status == EventStatusError {
			lastErr = &maerrors.PersonaError{Persona: req.ToPersona, TaskID: req.TaskID, CorrID: event.CorrID, Message: event.Error}
			continue
		}

		event, infoSources, err := d.runInformationLoop(ctx, req, pc, timeoutMS, event)
		sources += infoSources
		if err != nil {
			return nil, err
		}

		return &Result{Event: event, Attempts: attempts, InformationRequestSources: sources}, nil
	}

	return nil, &maerrors.PersonaError{
		Persona: req.ToPersona,
		TaskID:  req.TaskID,
		Message: fmt.Sprintf("exhausted retries after %d attempt(s): %v", attempts, lastErr),
		Cause:   lastErr,
	}
}

// sendAndWait appends req (with a fresh corr_id) to the persona's request
// stream and blocks until its matching event arrives or timeoutMS elapses.
func (d *Dispatcher) sendAndWait(ctx context.Context, req Request, timeoutMS int) (Event, error) {
	corrID := corrid.New().String()

	ch, ok := d.waiters.register(corrID)
	if !ok {
		// corrid.New() collided, astronomically unlikely; treat as a
		// transient send failure so the caller retries with a new one.
		return Event{}, &maerrors.TransportError{Op: "register_waiter", Cause: fmt.Errorf("corr_id already pending: %s", corrID)}
	}
	defer d.waiters.cancel(corrID)

	payload, err := json.Marshal(req.Payload)
	if err != nil {
		return Event{}, &maerrors.ValidationError{Field: "payload", Message: err.Error()}
	}

	fields := map[string]string{
		FieldWorkflowID: req.WorkflowID,
		FieldStep:       req.Step,
		FieldFrom:       req.From,
		FieldToPersona:  req.ToPersona,
		FieldIntent:     req.Intent,
		FieldCorrID:     corrID,
		FieldPayload:    string(payload),
		FieldDeadlineS:  fmt.Sprintf("%d", req.DeadlineS),
		FieldProjectID:  req.ProjectID,
		FieldRepo:       req.Repo,
		FieldBranch:     req.Branch,
		FieldTaskID:     req.TaskID,
	}

	if _, err := d.Transport.Append(ctx, d.requestStream(req.ToPersona), fields); err != nil {
		return Event{}, &maerrors.TransportError{Op: "append", Stream: d.requestStream(req.ToPersona), Cause: err}
	}

	timer := time.NewTimer(time.Duration(timeoutMS) * time.Millisecond)
	defer timer.Stop()

	select {
	case event := <-ch:
		if d.seen.seenOrMark(seenKey{TaskID: req.TaskID, CorrID: corrID, Persona: req.ToPersona}, time.Now()) {
			// Already accepted this corr_id once; treat a second delivery
			// as a duplicate_response rather than a fresh result.
			event.Status = EventStatusDuplicateResponse
		}
		return event, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	case <-timer.C:
		return Event{}, &maerrors.TimeoutError{Operation: fmt.Sprintf("persona %s response", req.ToPersona), Duration: time.Duration(timeoutMS) * time.Millisecond}
	}
}
