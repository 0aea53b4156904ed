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

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
)

// infoRequestResult is the shape of an Event.Result payload when a persona
// asks for more context instead of returning a final answer.
type infoRequestResult struct {
	Status   string                   `json:"status"`
	Requests []map[string]interface{} `json:"requests"`
}

// runInformationLoop resolves a persona's info_request rounds: each
// requested source is fetched and appended as an "information block" to
// the request payload's user_text, then re-sent under a fresh corr_id.
// The loop is bounded by MaxInformationIterations and MaxUniqueSources,
// with a one-iteration grace period once the unique-source cap is first
// reached so a persona can still receive the sources it already asked for
// before being cut off. It returns the first non-info_request event.
func (d *Dispatcher) runInformationLoop(ctx context.Context, req Request, pc PersonaConfig, timeoutMS int, event Event) (Event, int, error) {
	seenSources := map[string]bool{}
	graceIteration := -1
	blocks := []string{}

	for iteration := 0; ; iteration++ {
		var parsed infoRequestResult
		if event.Result == "" || json.Unmarshal([]byte(event.Result), &parsed) != nil || parsed.Status != "info_request" {
			return event, len(seenSources), nil
		}

		if iteration >= d.Config.MaxInformationIterations {
			return event, len(seenSources), &maerrors.PersonaError{
				Persona: req.ToPersona,
				TaskID:  req.TaskID,
				Message: fmt.Sprintf("exceeded max_information_iterations (%d)", d.Config.MaxInformationIterations),
			}
		}

		for _, raw := range parsed.Requests {
			infoReq, err := NormalizeInfoRequest(raw)
			if err != nil {
				blocks = append(blocks, fmt.Sprintf("information request error: %v", err))
				continue
			}

			key := infoReq.sourceKey()
			if !seenSources[key] {
				if len(seenSources) >= d.Config.MaxUniqueSources {
					if graceIteration >= 0 && iteration > graceIteration {
						return event, len(seenSources), &maerrors.PersonaError{
							Persona: req.ToPersona,
							TaskID:  req.TaskID,
							Message: fmt.Sprintf("exceeded max_unique_sources (%d)", d.Config.MaxUniqueSources),
						}
					}
					if graceIteration < 0 {
						graceIteration = iteration
					}
				}
				seenSources[key] = true
			}

			content, err := ResolveInfoRequest(ctx, infoReq, req.Repo, d.HTTPSecurity, d.HTTPClient, d.Config.fileByteCapFor(infoReq.Kind))
			if err != nil {
				blocks = append(blocks, fmt.Sprintf("information request %s failed: %v", key, err))
				continue
			}
			blocks = append(blocks, fmt.Sprintf("--- %s ---\n%s", key, content))
		}

		nextReq := req
		nextReq.Payload = clonePayload(req.Payload)
		nextReq.Payload["information_blocks"] = blocks

		var err error
		event, err = d.sendAndWait(ctx, nextReq, timeoutMS)
		if err != nil {
			return Event{}, len(seenSources), err
		}
		if event.Status == EventStatusError {
			return event, len(seenSources), &maerrors.PersonaError{Persona: req.ToPersona, TaskID: req.TaskID, CorrID: event.CorrID, Message: event.Error}
		}
	}
}

func clonePayload(p map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// fileByteCapFor returns the byte cap appropriate to an information
// request's kind: HTTPByteCap for http_get, FileByteCap for repo_file.
func (c Config) fileByteCapFor(kind InfoRequestKind) int64 {
	if kind == InfoRequestHTTPGet {
		return c.HTTPByteCap
	}
	return c.FileByteCap
}
