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

package review

import (
	"encoding/json"
	"fmt"
	"strings"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
)

// ParsePMDecision parses the project-manager persona's response into a
// PMDecision. raw is typically a map[string]interface{} decoded from the
// persona's JSON payload, but the wire contract also allows a bare string
// response, which itself comes in two shapes seen from the persona: just
// the decision keyword with no structured follow-ups, or a whole JSON
// object encoded as text (when the caller passes the event's raw result
// straight through rather than pre-decoding it). Both string shapes are
// accepted here rather than treated as a format error.
func ParsePMDecision(raw interface{}) (*PMDecision, error) {
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		var asObject map[string]interface{}
		if strings.HasPrefix(trimmed, "{") {
			if err := json.Unmarshal([]byte(trimmed), &asObject); err == nil {
				return parseObject(asObject)
			}
		}
		return normalize(&PMDecision{Decision: Decision(strings.ToLower(trimmed))})
	case map[string]interface{}:
		return parseObject(v)
	case nil:
		return normalize(&PMDecision{})
	default:
		return nil, &maerrors.ValidationError{
			Field:      "pm_decision",
			Message:    fmt.Sprintf("unsupported PM decision payload type %T", raw),
			Suggestion: "PM decision must be a JSON object or a bare decision string",
		}
	}
}

func parseObject(m map[string]interface{}) (*PMDecision, error) {
	d := &PMDecision{}
	if s, ok := m["decision"].(string); ok {
		d.Decision = Decision(strings.ToLower(strings.TrimSpace(s)))
	}
	d.ImmediateIssues = stringSlice(m["immediate_issues"])
	d.DeferredIssues = stringSlice(m["deferred_issues"])
	if s, ok := m["reasoning"].(string); ok {
		d.Reasoning = s
	}
	if s, ok := m["detected_stage"].(string); ok {
		switch Stage(strings.ToLower(strings.TrimSpace(s))) {
		case StageEarly, StageBeta, StageProduction:
			d.DetectedStage = Stage(strings.ToLower(strings.TrimSpace(s)))
		}
	}

	if rawTasks, ok := m["follow_up_tasks"].([]interface{}); ok {
		for _, rt := range rawTasks {
			tm, ok := rt.(map[string]interface{})
			if !ok {
				continue
			}
			d.FollowUpTasks = append(d.FollowUpTasks, parseFollowUp(tm))
		}
	}

	return normalize(d)
}

func parseFollowUp(m map[string]interface{}) FollowUpTask {
	t := FollowUpTask{}
	if s, ok := m["title"].(string); ok {
		t.Title = s
	}
	if s, ok := m["description"].(string); ok {
		t.Description = s
	}
	if s, ok := m["priority"].(string); ok {
		t.Priority = NormalizePriority(s)
	} else {
		t.Priority = PriorityMedium
	}
	if s, ok := m["milestone_id"].(string); ok {
		t.MilestoneID = s
	}
	if s, ok := m["milestone_slug"].(string); ok {
		t.MilestoneSlug = s
	}
	if s, ok := m["assignee_persona"].(string); ok {
		t.AssigneePersona = s
	}
	t.Labels = stringSlice(m["labels"])
	if md, ok := m["metadata"].(map[string]interface{}); ok {
		t.Metadata = md
	}
	return t
}

// normalize applies the decision-normalization rules: unrecognized
// decision values default to defer; an immediate_fix with no follow-up
// tasks downgrades to defer with a recorded warning.
func normalize(d *PMDecision) (*PMDecision, error) {
	switch d.Decision {
	case DecisionImmediateFix, DecisionDefer:
		// already a recognized value
	default:
		d.Warnings = append(d.Warnings, fmt.Sprintf("unrecognized PM decision %q defaulted to defer", d.Decision))
		d.Decision = DecisionDefer
	}

	if d.Decision == DecisionImmediateFix && len(d.FollowUpTasks) == 0 {
		d.Warnings = append(d.Warnings, "PM decision was immediate_fix with no follow_up_tasks; downgraded to defer")
		d.Decision = DecisionDefer
	}

	return d, nil
}

func stringSlice(raw interface{}) []string {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
