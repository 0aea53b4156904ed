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

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
)

// topologicalOrder returns steps in an order where every step follows all
// of its dependencies, detecting cycles via Kahn's algorithm rather than
// relying on the declaration-order constraint Validate also enforces.
func topologicalOrder(steps []StepDefinition) ([]string, error) {
	indegree := make(map[string]int, len(steps))
	dependents := make(map[string][]string, len(steps))
	names := make([]string, 0, len(steps))

	for _, s := range steps {
		indegree[s.Name] = 0
		names = append(names, s.Name)
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			indegree[s.Name]++
			dependents[dep] = append(dependents[dep], s.Name)
		}
	}

	queue := make([]string, 0, len(steps))
	for _, n := range names {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(steps))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, dep := range dependents[n] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(order) != len(steps) {
		return nil, &maerrors.ValidationError{
			Field:   "steps",
			Message: fmt.Sprintf("workflow contains a dependency cycle (%d of %d steps are reachable from roots)", len(order), len(steps)),
		}
	}
	return order, nil
}

// readySet returns the steps, among pending, whose dependencies are all in
// a terminal state (present in terminal).
func readySet(steps []StepDefinition, pending map[string]bool, terminal map[string]bool) []StepDefinition {
	var ready []StepDefinition
	for _, s := range steps {
		if !pending[s.Name] {
			continue
		}
		allDepsTerminal := true
		for _, dep := range s.DependsOn {
			if !terminal[dep] {
				allDepsTerminal = false
				break
			}
		}
		if allDepsTerminal {
			ready = append(ready, s)
		}
	}
	return ready
}
