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

// Package steps is the concrete step library: the StepFunc implementations
// registered into a workflow.Registry that give the declarative DAG engine
// something to actually execute (persona dispatch, context scanning, test
// discovery, git artifact writes, and the review-failure/task-creation
// pipeline steps).
package steps

import (
	"github.com/maflow/orchestrator/pkg/dashboard"
	"github.com/maflow/orchestrator/pkg/gitrepo"
	"github.com/maflow/orchestrator/pkg/persona"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// Deps bundles the backing clients every step in this package may need.
// Individual Register* functions only touch the fields their step actually
// uses.
type Deps struct {
	Dispatcher *persona.Dispatcher
	Dashboard  dashboard.Client
	Git        gitrepo.WorkingCopy
}

// Register adds every step type this package implements to reg. Callers
// that only need a subset (tests, a stripped-down CLI mode) can call the
// individual Register* functions instead.
func Register(reg *workflow.Registry, deps Deps) {
	RegisterPersonaRequest(reg, deps)
	RegisterContext(reg, deps)
	RegisterTestCommandDiscovery(reg, deps)
	RegisterTestHarnessSynthesis(reg, deps)
	RegisterDependencyStatus(reg, deps)
	RegisterGitArtifact(reg, deps)
	RegisterDiffApply(reg, deps)
	RegisterAnalysisTaskBuilder(reg, deps)
	RegisterReviewFailureNormalize(reg, deps)
	RegisterPMDecisionParse(reg, deps)
	RegisterReviewFailureFilter(reg, deps)
	RegisterReviewFailureCoverage(reg, deps)
	RegisterBulkTaskCreation(reg, deps)
	RegisterQAArtifactLoad(reg, deps)
}

// configString reads a string field from a step's resolved config, or
// returns def if absent/not a string.
func configString(cfg map[string]interface{}, key, def string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return def
}

func configBool(cfg map[string]interface{}, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

func configStringSlice(cfg map[string]interface{}, key string) []string {
	raw, ok := cfg[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func configMap(cfg map[string]interface{}, key string) map[string]interface{} {
	m, _ := cfg[key].(map[string]interface{})
	return m
}
