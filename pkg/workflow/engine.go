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
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/telemetry"
	"github.com/maflow/orchestrator/pkg/workflow/expression"
)

// maxConcurrentSteps bounds how many ready steps a single round launches at
// once. The DAG's actual width is usually far smaller; this exists as a
// backstop against pathologically wide workflow specs.
const maxConcurrentSteps = 8

// StepFunc executes one step's resolved config against the run context and
// returns its output. Implementations live in pkg/steps; this package only
// knows the interface and the scheduling around it.
type StepFunc func(ctx context.Context, wctx *Context, config map[string]interface{}) (StepOutput, error)

// Registry maps step type names to their implementations. Step types are
// registered by pkg/steps and pkg/workflow/subworkflow at process startup,
// not hardcoded here, so the engine stays a pure scheduler.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]StepFunc
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]StepFunc)}
}

// Register adds or replaces the implementation for a step type.
func (r *Registry) Register(stepType string, fn StepFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[stepType] = fn
}

func (r *Registry) lookup(stepType string) (StepFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.steps[stepType]
	return fn, ok
}

// Engine schedules and executes a Definition's DAG against a Context.
type Engine struct {
	Registry  *Registry
	Evaluator *expression.Evaluator
}

// NewEngine creates an Engine with a fresh step registry and condition
// evaluator.
func NewEngine() *Engine {
	return &Engine{Registry: NewRegistry(), Evaluator: expression.New()}
}

// Run executes def's DAG to completion against wctx: resolving a ready-set
// each round, running it concurrently (bounded by maxConcurrentSteps),
// evaluating each step's condition, applying its retry policy, and
// extracting declared outputs into wctx on success. Returns the first
// abort-triggering error, if any; callers are responsible for invoking the
// abort-cleanup pipeline (pkg/coordinator) afterward.
func (e *Engine) Run(ctx context.Context, def *Definition, wctx *Context) error {
	var mu sync.Mutex
	pending := make(map[string]bool, len(def.Steps))
	terminal := make(map[string]bool, len(def.Steps))
	failed := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		pending[s.Name] = true
	}

	for {
		mu.Lock()
		ready := readySet(def.Steps, pending, terminal)
		mu.Unlock()

		if len(ready) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(maxConcurrentSteps)

		for _, step := range ready {
			step := step
			mu.Lock()
			delete(pending, step.Name)
			mu.Unlock()

			g.Go(func() error {
				status, runErr := e.runStep(gctx, &step, wctx, &mu, failed)

				mu.Lock()
				terminal[step.Name] = true
				if status == StepStatusFailed {
					failed[step.Name] = true
				}
				wctx.Set(fmt.Sprintf("%s_status", step.Name), string(status))
				wctx.AppendCompletedStep(step.Name, status)
				mu.Unlock()

				if runErr != nil {
					return runErr
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return err
		}

		if wctx.Aborted() {
			break
		}
	}
	return nil
}

// runStep decides whether step runs (dependency/condition skip), executes
// it with retry, and on success copies its declared outputs into wctx.
// Returns the step's terminal status and, for an abort-triggering failure,
// the error that should stop the run.
func (e *Engine) runStep(ctx context.Context, step *StepDefinition, wctx *Context, mu *sync.Mutex, failed map[string]bool) (StepStatus, error) {
	mu.Lock()
	blocked := false
	var blockingDep string
	for _, dep := range step.DependsOn {
		if failed[dep] {
			blocked = true
			blockingDep = dep
			break
		}
	}
	mu.Unlock()

	if blocked {
		wctx.Log(fmt.Sprintf("step %s skipped: dependency %s failed", step.Name, blockingDep))
		return StepStatusSkippedDependency, nil
	}

	ok, err := e.Evaluator.Evaluate(step.Condition, wctx.Variables())
	if err != nil {
		wctx.Log(fmt.Sprintf("step %s condition error: %s", step.Name, err.Error()))
		return StepStatusFailed, err
	}
	if !ok {
		return StepStatusSkippedCondition, nil
	}

	fn, ok := e.Registry.lookup(step.Type)
	if !ok {
		err := &maerrors.ValidationError{
			Field:   "type",
			Message: fmt.Sprintf("no step implementation registered for type %q (step %q)", step.Type, step.Name),
		}
		return StepStatusFailed, err
	}

	resolvedConfig, _ := expression.ResolveAny(step.Config, wctx.Variables()).(map[string]interface{})

	stepCtx, span := telemetry.StartStep(ctx, step.Name, step.Type)
	started := time.Now()
	output, abort, err := e.executeWithRetry(stepCtx, fn, wctx, step, resolvedConfig)
	elapsed := time.Since(started).Seconds()

	if err != nil {
		span.RecordError(err)
		span.End()
		wctx.Log(fmt.Sprintf("step %s failed: %s", step.Name, err.Error()))
		telemetry.RecordStepComplete(step.Type, string(StepStatusFailed), elapsed)
		if abort {
			alreadyAborted := wctx.Abort(step.Name, err.Error())
			if !alreadyAborted {
				wctx.Log(fmt.Sprintf("workflow aborted at step %s: %s", step.Name, err.Error()))
			}
			return StepStatusFailed, err
		}
		return StepStatusFailed, nil
	}
	span.SetOK()
	span.End()
	telemetry.RecordStepComplete(step.Type, string(StepStatusDone), elapsed)

	asMap := output.ToMap()
	mu.Lock()
	wctx.Set(step.Name, asMap)
	for _, outName := range step.Outputs {
		if v, present := asMap[outName]; present {
			wctx.Set(outName, v)
		}
	}
	mu.Unlock()

	return StepStatusDone, nil
}

// executeWithRetry runs fn with step's retry policy: exponential backoff
// 500ms * 2^n plus up to 300ms of jitter, capped at 15s between attempts.
// Exhausting all attempts, or the step explicitly asking to abort via its
// error, flags abort=true.
func (e *Engine) executeWithRetry(ctx context.Context, fn StepFunc, wctx *Context, step *StepDefinition, config map[string]interface{}) (StepOutput, bool, error) {
	maxAttempts := 1
	if step.Retry != nil && step.Retry.MaxAttempts > 0 {
		maxAttempts = step.Retry.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := stepBackoff(attempt)
			select {
			case <-ctx.Done():
				return StepOutput{}, true, ctx.Err()
			case <-time.After(backoff):
			}
		}

		stepCtx := ctx
		var cancel context.CancelFunc
		if step.TimeoutMS > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutMS)*time.Millisecond)
		}

		output, err := fn(stepCtx, wctx, config)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			if output.Error != "" {
				if output.Abort {
					return StepOutput{}, true, maerrors.New(output.Error)
				}
				lastErr = maerrors.New(output.Error)
				continue
			}
			return output, false, nil
		}

		lastErr = err
		if stepCtx.Err() == context.DeadlineExceeded {
			lastErr = &maerrors.TimeoutError{Operation: fmt.Sprintf("step %s", step.Name), Duration: time.Duration(step.TimeoutMS) * time.Millisecond, Cause: err}
		}
	}

	return StepOutput{}, true, lastErr
}

// stepBackoff computes the retry delay for a zero-based attempt index.
func stepBackoff(attempt int) time.Duration {
	base := 500 * time.Millisecond
	delay := base * time.Duration(1<<uint(attempt))
	if delay > 15*time.Second {
		delay = 15 * time.Second
	}
	jitter := time.Duration(rand.Int63n(int64(300 * time.Millisecond)))
	return delay + jitter
}
