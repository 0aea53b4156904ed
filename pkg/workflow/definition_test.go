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

package workflow

import "testing"

func TestParseDefinition_MinimalWorkflow(t *testing.T) {
	data := []byte(`
name: task-flow
steps:
  - name: context
    type: context
  - name: plan
    type: persona_request
    depends_on: [context]
`)
	def, err := ParseDefinition(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(def.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(def.Steps))
	}
	if def.Steps[0].Retry.MaxAttempts != 2 {
		t.Fatalf("expected default max_attempts 2, got %d", def.Steps[0].Retry.MaxAttempts)
	}
	if def.Steps[0].TimeoutMS != 30_000 {
		t.Fatalf("expected default timeout_ms 30000, got %d", def.Steps[0].TimeoutMS)
	}
}

func TestParseDefinition_ExpandsTemplate(t *testing.T) {
	data := []byte(`
name: task-flow
templates:
  review_base:
    config:
      persona: code_review
      intent: review
steps:
  - name: review
    type: persona_request
    template: review_base
    config:
      intent: deep_review
`)
	def, err := ParseDefinition(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg := def.Steps[0].Config
	if cfg["persona"] != "code_review" {
		t.Fatalf("expected template field to be inherited, got %#v", cfg)
	}
	if cfg["intent"] != "deep_review" {
		t.Fatalf("expected step's own config to override template, got %#v", cfg)
	}
}

func TestParseDefinition_RejectsUndeclaredDependency(t *testing.T) {
	data := []byte(`
name: task-flow
steps:
  - name: plan
    type: persona_request
    depends_on: [nonexistent]
`)
	if _, err := ParseDefinition(data); err == nil {
		t.Fatal("expected undeclared dependency to be rejected")
	}
}

func TestParseDefinition_RejectsForwardReference(t *testing.T) {
	data := []byte(`
name: task-flow
steps:
  - name: plan
    type: persona_request
    depends_on: [qa]
  - name: qa
    type: persona_request
`)
	if _, err := ParseDefinition(data); err == nil {
		t.Fatal("expected a dependency on a later-declared step to be rejected")
	}
}

func TestParseDefinition_RejectsDuplicateStepNames(t *testing.T) {
	data := []byte(`
name: task-flow
steps:
  - name: plan
    type: persona_request
  - name: plan
    type: persona_request
`)
	if _, err := ParseDefinition(data); err == nil {
		t.Fatal("expected duplicate step names to be rejected")
	}
}

func TestParseDefinition_RejectsMissingTemplate(t *testing.T) {
	data := []byte(`
name: task-flow
steps:
  - name: plan
    type: persona_request
    template: does_not_exist
`)
	if _, err := ParseDefinition(data); err == nil {
		t.Fatal("expected reference to an undefined template to be rejected")
	}
}
