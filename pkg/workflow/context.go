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

import (
	"fmt"

	"github.com/maflow/orchestrator/pkg/transport"
)

// ErrKeyNotFound represents an error when a requested key does not exist in
// the context variables.
type ErrKeyNotFound struct {
	Key string
}

// Error implements the error interface. It deliberately omits the actual
// value to avoid leaking persona-response or task-payload content.
func (e ErrKeyNotFound) Error() string {
	return fmt.Sprintf("key %q not found", e.Key)
}

// ErrTypeAssertion represents an error when a value cannot be asserted to
// the expected type.
type ErrTypeAssertion struct {
	Key  string
	Got  string
	Want string
}

// Error implements the error interface. It deliberately omits the actual
// value to avoid leaking persona-response or task-payload content.
func (e ErrTypeAssertion) Error() string {
	return fmt.Sprintf("key %q is %s, not %s", e.Key, e.Got, e.Want)
}

// StepStatus records how a step's execution concluded.
type StepStatus string

const (
	StepStatusDone              StepStatus = "done"
	StepStatusFailed            StepStatus = "failed"
	StepStatusSkippedCondition  StepStatus = "skipped_due_to_condition"
	StepStatusSkippedDependency StepStatus = "skipped_due_to_dependency"
)

// CompletedStep records a single step's terminal state in run order.
type CompletedStep struct {
	StepID string     `json:"step_id"`
	Status StepStatus `json:"status"`
}

// Context is the single mutable run state threaded through a workflow
// execution: the workflow identity, the repo location the steps operate
// against, the transport handle used to reach personas, and the
// monotonically-growing variables map that steps read from and write new
// outputs into.
//
// Context is exclusively owned by the engine instance running this
// workflow. No concurrent mutation is permitted across goroutines except
// through the engine's serialized setters (Set, AppendCompletedStep,
// Abort); concurrent reads of already-published state are safe.
type Context struct {
	WorkflowID string
	ProjectID  string
	RepoRoot   string
	Branch     string
	Transport  transport.Transport

	variables      map[string]interface{}
	completedSteps []CompletedStep
	failedStep     string
	abortReason    string
	diagnosticLog  []string
	aborted        bool
}

// NewContext creates a Context seeded with the given identity fields and an
// empty variables map.
func NewContext(workflowID, projectID, repoRoot, branch string, tr transport.Transport) *Context {
	return &Context{
		WorkflowID: workflowID,
		ProjectID:  projectID,
		RepoRoot:   repoRoot,
		Branch:     branch,
		Transport:  tr,
		variables:  make(map[string]interface{}),
	}
}

// Variables returns the underlying variables map for expression evaluation.
// Callers must not mutate the returned map directly; use Set.
func (c *Context) Variables() map[string]interface{} {
	return c.variables
}

// Set stores a value under key, making it visible to every subsequent
// variable resolution and condition evaluation. This is the engine's single
// mutation point for context variables.
func (c *Context) Set(key string, value interface{}) {
	c.variables[key] = value
}

// GetString retrieves a string variable.
func (c *Context) GetString(key string) (string, error) {
	val, ok := c.variables[key]
	if !ok {
		return "", ErrKeyNotFound{Key: key}
	}
	s, ok := val.(string)
	if !ok {
		return "", ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "string"}
	}
	return s, nil
}

// GetStringOr returns a string variable or defaultVal if missing or of the
// wrong type. Never errors.
func (c *Context) GetStringOr(key, defaultVal string) string {
	s, err := c.GetString(key)
	if err != nil {
		return defaultVal
	}
	return s
}

// GetMap retrieves a map variable.
func (c *Context) GetMap(key string) (map[string]interface{}, error) {
	val, ok := c.variables[key]
	if !ok {
		return nil, ErrKeyNotFound{Key: key}
	}
	m, ok := val.(map[string]interface{})
	if !ok {
		return nil, ErrTypeAssertion{Key: key, Got: fmt.Sprintf("%T", val), Want: "map[string]interface{}"}
	}
	return m, nil
}

// AppendCompletedStep records a step's terminal status in run order.
func (c *Context) AppendCompletedStep(stepID string, status StepStatus) {
	c.completedSteps = append(c.completedSteps, CompletedStep{StepID: stepID, Status: status})
}

// CompletedSteps returns the ordered list of completed steps.
func (c *Context) CompletedSteps() []CompletedStep {
	return c.completedSteps
}

// Log appends a line to the run's diagnostic log, used to build the abort
// snapshot and surfaced in the coordinator's structured logging.
func (c *Context) Log(line string) {
	c.diagnosticLog = append(c.diagnosticLog, line)
}

// DiagnosticLog returns the accumulated diagnostic log lines.
func (c *Context) DiagnosticLog() []string {
	return c.diagnosticLog
}

// Abort marks the run aborted with failedStep and reason. Idempotent: a
// second call is a no-op and reports that the run was already aborted.
func (c *Context) Abort(failedStep, reason string) (alreadyAborted bool) {
	if c.aborted {
		return true
	}
	c.aborted = true
	c.failedStep = failedStep
	c.abortReason = reason
	return false
}

// Aborted reports whether the run has been aborted.
func (c *Context) Aborted() bool {
	return c.aborted
}

// FailedStep returns the step that triggered the abort, if any.
func (c *Context) FailedStep() string {
	return c.failedStep
}

// AbortReason returns the recorded abort reason, if any.
func (c *Context) AbortReason() string {
	return c.abortReason
}

// StepOutput is the structured result of executing a single step.
type StepOutput struct {
	Text     string                 `json:"text,omitempty"`
	Data     interface{}            `json:"data,omitempty"`
	Error    string                 `json:"error,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Abort, when set alongside Error, flags the workflow aborted
	// immediately regardless of remaining retry attempts.
	Abort bool `json:"abort,omitempty"`
}

// ToMap flattens a StepOutput into an untyped map for expression evaluation
// and declared-output extraction ("${step.field}" lookups).
func (s StepOutput) ToMap() map[string]interface{} {
	out := make(map[string]interface{})
	if s.Text != "" {
		out["text"] = s.Text
	}
	if s.Error != "" {
		out["error"] = s.Error
	}
	if dataMap, ok := s.Data.(map[string]interface{}); ok {
		for k, v := range dataMap {
			out[k] = v
		}
	} else if s.Data != nil {
		out["data"] = s.Data
	}
	return out
}
