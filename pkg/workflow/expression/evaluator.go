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

package expression

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
)

// Evaluator evaluates the closed step-condition grammar: A == B, A != B,
// A || B, and bare variable paths treated as truthy checks. Operands are
// either literals ('pass', 42, true/false) or ${...} variable references.
// No general expression language is exposed: Evaluate rejects anything
// that does not fit this grammar before it ever reaches the compiler.
//
// Compiled programs are cached by their original (pre-substitution)
// condition string, since the same step condition is evaluated once per
// workflow run per step and cache hits dominate re-runs of the same spec.
type Evaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// New creates an empty evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate evaluates condition against vars. An empty condition is always
// true (the step is unconditional).
func (e *Evaluator) Evaluate(condition string, vars map[string]interface{}) (bool, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return true, nil
	}

	if err := validateGrammar(condition); err != nil {
		return false, &maerrors.ValidationError{
			Field:      "condition",
			Message:    err.Error(),
			Suggestion: "use only ==, !=, ||, literals, and ${...} variable references",
		}
	}

	program, err := e.compile(condition)
	if err != nil {
		return false, &maerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile condition %q: %s", condition, err.Error()),
			Suggestion: "check condition syntax",
		}
	}

	env := map[string]interface{}{"truthy": truthy}
	for k, v := range vars {
		env[k] = v
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, &maerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition evaluation failed: %s", err.Error()),
			Suggestion: "verify referenced variables exist in the workflow context",
		}
	}

	b, ok := result.(bool)
	if !ok {
		return false, &maerrors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition must evaluate to a boolean, got %T", result),
			Suggestion: "wrap bare variable paths so they are evaluated as truthy checks",
		}
	}
	return b, nil
}

// compile rewrites condition into an expr-lang program and caches it.
// Each bare-path term is wrapped with truthy() so the overall expression
// always evaluates to a boolean, matching the grammar's semantics.
func (e *Evaluator) compile(condition string) (*vm.Program, error) {
	e.mu.RLock()
	if p, ok := e.cache[condition]; ok {
		e.mu.RUnlock()
		return p, nil
	}
	e.mu.RUnlock()

	rewritten := rewriteForEval(condition)

	program, err := expr.Compile(rewritten,
		expr.Env(map[string]interface{}{"truthy": truthy}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[condition] = program
	e.mu.Unlock()
	return program, nil
}

// rewriteForEval splits condition on top-level "||", unwraps any "${path}"
// references into bare dotted paths (expr-lang indexes nested maps with
// plain dot notation, so "${a.b}" and "a.b" compile identically), and wraps
// any term that is not already an "==" / "!=" comparison with truthy(...).
func rewriteForEval(condition string) string {
	terms := splitTopLevel(condition, "||")
	rewritten := make([]string, len(terms))
	for i, term := range terms {
		term = strings.TrimSpace(term)
		unwrapped := fragmentRef.ReplaceAllString(term, "$1")
		if hasComparisonOperator(unwrapped) {
			rewritten[i] = unwrapped
		} else {
			rewritten[i] = fmt.Sprintf("truthy(%s)", unwrapped)
		}
	}
	return strings.Join(rewritten, " || ")
}

// truthy implements the grammar's definition of truthiness: empty, null,
// and zero values are falsy.
func truthy(v interface{}) bool {
	switch tv := v.(type) {
	case nil:
		return false
	case bool:
		return tv
	case string:
		return tv != ""
	case int:
		return tv != 0
	case int64:
		return tv != 0
	case float64:
		return tv != 0
	case []interface{}:
		return len(tv) > 0
	case map[string]interface{}:
		return len(tv) > 0
	default:
		return true
	}
}
