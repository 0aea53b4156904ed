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

// Package workflow loads and executes DAG-shaped workflow definitions:
// named steps with conditional edges, dependency-driven concurrent
// scheduling, per-step retry/timeout policies, and sub-workflow nesting.
package workflow

import (
	"fmt"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"gopkg.in/yaml.v3"
)

// Definition is an immutable-per-version workflow specification loaded
// from YAML.
type Definition struct {
	Name        string           `yaml:"name" json:"name"`
	Version     string           `yaml:"version" json:"version"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Templates   map[string]Template `yaml:"templates,omitempty" json:"templates,omitempty"`
	Steps       []StepDefinition `yaml:"steps" json:"steps"`
}

// Template holds config shared across steps that reference it by name.
// A step's own config overrides the template's on a per-key basis.
type Template struct {
	Config map[string]interface{} `yaml:"config" json:"config"`
}

// RetryDefinition configures a step's retry policy. A step may opt out of
// retries entirely with MaxAttempts: 1.
type RetryDefinition struct {
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
}

// StepDefinition is a single node in the workflow DAG.
type StepDefinition struct {
	Name       string                 `yaml:"name" json:"name"`
	Type       string                 `yaml:"type" json:"type"`
	Template   string                 `yaml:"template,omitempty" json:"template,omitempty"`
	Config     map[string]interface{} `yaml:"config,omitempty" json:"config,omitempty"`
	DependsOn  []string               `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Condition  string                 `yaml:"condition,omitempty" json:"condition,omitempty"`
	Outputs    []string               `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Retry      *RetryDefinition       `yaml:"retry,omitempty" json:"retry,omitempty"`
	TimeoutMS  int                    `yaml:"timeout_ms,omitempty" json:"timeout_ms,omitempty"`
}

// ParseDefinition parses, template-expands, defaults, and validates a
// workflow definition in one pass, mirroring the load → default → validate
// pipeline used throughout this codebase's declarative config.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, &maerrors.ValidationError{
			Field:   "workflow_definition",
			Message: fmt.Sprintf("failed to parse YAML: %s", err.Error()),
		}
	}

	if err := def.expandTemplates(); err != nil {
		return nil, err
	}
	def.applyDefaults()

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// expandTemplates merges each step's referenced template config under the
// step's own config, with the step's own keys taking precedence.
func (d *Definition) expandTemplates() error {
	for i := range d.Steps {
		step := &d.Steps[i]
		if step.Template == "" {
			continue
		}
		tmpl, ok := d.Templates[step.Template]
		if !ok {
			return &maerrors.ValidationError{
				Field:      fmt.Sprintf("steps[%d].template", i),
				Message:    fmt.Sprintf("step %q references undefined template %q", step.Name, step.Template),
				Suggestion: "define the template under the workflow's top-level templates map",
			}
		}

		merged := make(map[string]interface{}, len(tmpl.Config)+len(step.Config))
		for k, v := range tmpl.Config {
			merged[k] = v
		}
		for k, v := range step.Config {
			merged[k] = v
		}
		step.Config = merged
	}
	return nil
}

// applyDefaults fills in default retry policy and timeout for every step
// that does not declare its own.
func (d *Definition) applyDefaults() {
	for i := range d.Steps {
		step := &d.Steps[i]
		if step.Retry == nil {
			step.Retry = &RetryDefinition{MaxAttempts: 2}
		}
		if step.TimeoutMS == 0 {
			step.TimeoutMS = 30_000
		}
	}
}

// Validate checks structural well-formedness: unique step names,
// depends_on referencing only earlier-declared steps, and an acyclic
// dependency graph.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &maerrors.ValidationError{Field: "name", Message: "workflow name is required"}
	}
	if len(d.Steps) == 0 {
		return &maerrors.ValidationError{Field: "steps", Message: "workflow must declare at least one step"}
	}

	seen := make(map[string]int, len(d.Steps))
	for i, step := range d.Steps {
		if step.Name == "" {
			return &maerrors.ValidationError{Field: fmt.Sprintf("steps[%d].name", i), Message: "step name is required"}
		}
		if step.Type == "" {
			return &maerrors.ValidationError{Field: fmt.Sprintf("steps[%d].type", i), Message: "step type is required"}
		}
		if prior, dup := seen[step.Name]; dup {
			return &maerrors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].name", i),
				Message: fmt.Sprintf("step name %q duplicates steps[%d]", step.Name, prior),
			}
		}
		seen[step.Name] = i
	}

	for i, step := range d.Steps {
		for _, dep := range step.DependsOn {
			depIdx, ok := seen[dep]
			if !ok {
				return &maerrors.ValidationError{
					Field:   fmt.Sprintf("steps[%d].depends_on", i),
					Message: fmt.Sprintf("step %q depends on undeclared step %q", step.Name, dep),
				}
			}
			if depIdx >= i {
				return &maerrors.ValidationError{
					Field:      fmt.Sprintf("steps[%d].depends_on", i),
					Message:    fmt.Sprintf("step %q depends on %q, which is not declared earlier in the file", step.Name, dep),
					Suggestion: "declare dependencies before the steps that depend on them",
				}
			}
		}
		if step.Retry != nil && step.Retry.MaxAttempts < 1 {
			return &maerrors.ValidationError{
				Field:   fmt.Sprintf("steps[%d].retry.max_attempts", i),
				Message: "max_attempts must be at least 1",
			}
		}
	}

	if _, err := topologicalOrder(d.Steps); err != nil {
		return err
	}
	return nil
}
