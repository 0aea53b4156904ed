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

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/persona"
	"github.com/maflow/orchestrator/pkg/review"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// RegisterPersonaRequest adds the "persona_request" step type: dispatches
// one request to a named persona and waits for its resolved result. Config:
//
//	to_persona (string, required)
//	intent (string, required)
//	payload (map, sent as the request payload)
//	deadline_s (int)
//	review_type (string, optional) - when set, the persona's result text is
//	  classified via review.InterpretStatus and the normalized
//	  {status, details} are added to the step output alongside the raw event.
//	changed_files (list of string, optional) - passed to the language-policy
//	  guard for reviewer personas.
func RegisterPersonaRequest(reg *workflow.Registry, deps Deps) {
	reg.Register("persona_request", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		toPersona := configString(cfg, "to_persona", "")
		intent := configString(cfg, "intent", "")
		if toPersona == "" || intent == "" {
			return workflow.StepOutput{}, &maerrors.ValidationError{Field: "to_persona/intent", Message: "persona_request requires to_persona and intent"}
		}

		req := persona.Request{
			WorkflowID: wctx.WorkflowID,
			Step:       configString(cfg, "step", toPersona),
			From:       "coordinator",
			ToPersona:  toPersona,
			Intent:     intent,
			Payload:    configMap(cfg, "payload"),
			DeadlineS:  configInt(cfg, "deadline_s", 0),
			ProjectID:  wctx.ProjectID,
			Branch:     wctx.Branch,
			TaskID:     wctx.GetStringOr("task_id", ""),
		}

		changedFiles := configStringSlice(cfg, "changed_files")

		result, err := deps.Dispatcher.Request(ctx, req, changedFiles)
		if err != nil {
			return workflow.StepOutput{}, err
		}

		out := workflow.StepOutput{
			Text: result.Event.Result,
			Data: map[string]interface{}{
				"corr_id":                     result.Event.CorrID,
				"from_persona":                result.Event.FromPersona,
				"raw_status":                  string(result.Event.Status),
				"attempts":                    result.Attempts,
				"information_request_sources": result.InformationRequestSources,
			},
		}

		reviewType := configString(cfg, "review_type", "")
		if reviewType != "" {
			payload := parseResultPayload(result.Event.Result)
			interpreted := review.InterpretStatus(reviewType, result.Event.Result, payload)
			data := out.Data.(map[string]interface{})
			data["status"] = string(interpreted.Status)
			data["details"] = interpreted.Details
			data["downgraded"] = interpreted.Downgraded
			data["payload"] = interpreted.Payload
		}

		return out, nil
	})
}

// parseResultPayload best-effort decodes a persona's result text as a JSON
// object for status/field inspection. A non-object or unparsable result
// (a plain natural-language response) yields a nil payload, which callers
// treat the same as "no structured fields".
func parseResultPayload(result string) map[string]interface{} {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		return nil
	}
	return payload
}

func configInt(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
