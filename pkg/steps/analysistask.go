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
	"strings"

	"github.com/maflow/orchestrator/pkg/review"
	"github.com/maflow/orchestrator/pkg/workflow"
)

type analysisHypothesis struct {
	Confidence         float64
	Summary            string
	Steps              []string
	AcceptanceCriteria []string
	ValidationPlan     string
	KeyFiles           []string
}

// RegisterAnalysisTaskBuilder adds the "analysis_task_builder" step type:
// picks the highest-confidence hypothesis out of an analyst persona's
// payload and composes it into a single actionable follow-up task
// description (summary, numbered remediation steps, acceptance criteria,
// validation plan, key files). Config:
//
//	analysis (map) - expects a "hypotheses" array of objects with
//	  confidence, summary, steps, acceptance_criteria, validation_plan,
//	  key_files fields.
func RegisterAnalysisTaskBuilder(reg *workflow.Registry, deps Deps) {
	reg.Register("analysis_task_builder", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		analysis := configMap(cfg, "analysis")
		hypotheses := parseHypotheses(analysis)
		if len(hypotheses) == 0 {
			return workflow.StepOutput{Data: map[string]interface{}{"actionable_tasks": []review.FollowUpTask{}}}, nil
		}

		best := hypotheses[0]
		for _, h := range hypotheses[1:] {
			if h.Confidence > best.Confidence {
				best = h
			}
		}

		task := review.FollowUpTask{
			Title:       best.Summary,
			Description: composeRemediationDescription(best),
			Priority:    review.PriorityMedium,
		}

		return workflow.StepOutput{Data: map[string]interface{}{
			"actionable_tasks": []review.FollowUpTask{task},
			"confidence":       best.Confidence,
		}}, nil
	})
}

func parseHypotheses(analysis map[string]interface{}) []analysisHypothesis {
	raw, ok := analysis["hypotheses"].([]interface{})
	if !ok {
		return nil
	}
	var out []analysisHypothesis
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		h := analysisHypothesis{}
		if c, ok := m["confidence"].(float64); ok {
			h.Confidence = c
		}
		h.Summary, _ = m["summary"].(string)
		h.Steps = stringSliceFromAny(m["steps"])
		h.AcceptanceCriteria = stringSliceFromAny(m["acceptance_criteria"])
		h.ValidationPlan, _ = m["validation_plan"].(string)
		h.KeyFiles = stringSliceFromAny(m["key_files"])
		out = append(out, h)
	}
	return out
}

func stringSliceFromAny(raw interface{}) []string {
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

func composeRemediationDescription(h analysisHypothesis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", h.Summary)

	if len(h.Steps) > 0 {
		b.WriteString("Steps:\n")
		for i, s := range h.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
		b.WriteString("\n")
	}

	if len(h.AcceptanceCriteria) > 0 {
		b.WriteString("Acceptance criteria:\n")
		for _, c := range h.AcceptanceCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	if h.ValidationPlan != "" {
		fmt.Fprintf(&b, "Validation plan:\n%s\n\n", h.ValidationPlan)
	}

	if len(h.KeyFiles) > 0 {
		fmt.Fprintf(&b, "Key files: %s\n", strings.Join(h.KeyFiles, ", "))
	}

	return strings.TrimRight(b.String(), "\n")
}
