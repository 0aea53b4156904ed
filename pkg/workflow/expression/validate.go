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
	"regexp"
	"strings"
)

// operand matches a single comparison operand: a single- or double-quoted
// string literal, a number, true/false, or a dotted variable path (bare, or
// wrapped in "${...}").
const operandPattern = `(?:'[^']*'|"[^"]*"|[0-9]+(?:\.[0-9]+)?|true|false|\$\{\s*[a-zA-Z0-9_.\[\]]+\s*\}|[a-zA-Z_][a-zA-Z0-9_.\[\]]*)`

var (
	termPattern      = regexp.MustCompile(`^\s*` + operandPattern + `\s*(==|!=)\s*` + operandPattern + `\s*$`)
	barePathPattern  = regexp.MustCompile(`^\s*[a-zA-Z_][a-zA-Z0-9_.\[\]]*\s*$`)
	forbiddenSymbols = []string{"&&", "(", ")", "<", ">", "+", "-", "*", "/", "!", "?", ":"}
)

// validateGrammar rejects anything that does not fit the closed condition
// grammar: terms joined by "||", where each term is either a bare truthy
// path or an "==" / "!=" comparison between two operands. This runs before
// the expression ever reaches the compiler, so the only things that can be
// evaluated are the ones this function accepts.
func validateGrammar(condition string) error {
	for _, term := range splitTopLevel(condition, "||") {
		term = strings.TrimSpace(term)
		if term == "" {
			return fmt.Errorf("empty term in condition %q", condition)
		}
		if containsForbiddenSymbol(term) {
			return fmt.Errorf("condition term %q uses an unsupported operator; only ==, !=, and || are allowed", term)
		}
		if termPattern.MatchString(term) {
			continue
		}
		if barePathPattern.MatchString(term) || isTemplateRef(term) {
			continue
		}
		return fmt.Errorf("condition term %q is not a recognized comparison or variable path", term)
	}
	return nil
}

func isTemplateRef(term string) bool {
	return templateRef.MatchString(strings.TrimSpace(term))
}

func containsForbiddenSymbol(term string) bool {
	// "!=" itself contains "!", so check it's not part of that operator.
	stripped := strings.ReplaceAll(term, "!=", "")
	for _, sym := range forbiddenSymbols {
		if sym == "!" {
			if strings.Contains(stripped, "!") {
				return true
			}
			continue
		}
		if strings.Contains(term, sym) {
			return true
		}
	}
	return false
}

// hasComparisonOperator reports whether term is an "==" / "!=" comparison
// rather than a bare truthy path.
func hasComparisonOperator(term string) bool {
	return termPattern.MatchString(term)
}

// splitTopLevel splits s on every occurrence of sep. The condition grammar
// has no grouping constructs, so a plain split is sufficient; validateGrammar
// rejects parentheses before this is ever relied on for precedence.
func splitTopLevel(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}
