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

// Package expression resolves "${a.b.c}" style variable references against
// a workflow context and evaluates the small, closed condition grammar
// (==, !=, ||, bare truthy paths). It deliberately does not expose a
// general-purpose expression language: anything outside the grammar is
// rejected rather than silently accepted.
package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// templateRef matches a whole-string "${path}" or "${path.transform()}"
// reference, the form whose resolved value can be any JSON-compatible
// type rather than a string substitution.
var templateRef = regexp.MustCompile(`^\$\{\s*([a-zA-Z0-9_.\[\]]+)(?:\.(toUpperCase|toLowerCase)\(\))?\s*\}$`)

// fragmentRef matches "${...}" fragments embedded within a larger string,
// used for the partial string-substitution case.
var fragmentRef = regexp.MustCompile(`\$\{\s*([a-zA-Z0-9_.\[\]]+)(?:\.(toUpperCase|toLowerCase)\(\))?\s*\}`)

// Resolve renders a single string value against vars following the rules
// in order:
//  1. If the whole string is "${path}" or "${path.transform()}", return
//     whatever path resolves to, preserving its type (object, array,
//     number, string, null). If the path cannot be resolved, the literal
//     template is returned unchanged.
//  2. Otherwise, every "${...}" fragment is string-substituted in place;
//     unresolved fragments are left as literal text.
func Resolve(value string, vars map[string]interface{}) interface{} {
	if m := templateRef.FindStringSubmatch(value); m != nil {
		path, transform := m[1], m[2]
		resolved, ok := ResolvePath(path, vars)
		if !ok {
			return value
		}
		if transform != "" {
			if s, ok := resolved.(string); ok {
				resolved = applyTransform(s, transform)
			}
		}
		return resolved
	}

	return fragmentRef.ReplaceAllStringFunc(value, func(match string) string {
		sub := fragmentRef.FindStringSubmatch(match)
		path, transform := sub[1], sub[2]
		resolved, ok := ResolvePath(path, vars)
		if !ok {
			return match
		}
		s := stringify(resolved)
		if transform != "" {
			s = applyTransform(s, transform)
		}
		return s
	})
}

// ResolveAny walks an arbitrary JSON-like structure (map, slice, or
// scalar), applying Resolve to every string leaf. Non-string scalars are
// returned unchanged.
func ResolveAny(value interface{}, vars map[string]interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return Resolve(v, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = ResolveAny(val, vars)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = ResolveAny(val, vars)
		}
		return out
	default:
		return value
	}
}

// ResolvePath resolves a dot-separated path against vars. A missing
// intermediate step returns (nil, false), which callers use to decide
// whether to preserve the original template text.
func ResolvePath(path string, vars map[string]interface{}) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current interface{} = vars

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, false
		}

		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, ok := m[part]
		if !ok {
			return nil, false
		}
		current = val
	}

	return current, true
}

func applyTransform(s, transform string) string {
	switch transform {
	case "toUpperCase":
		return strings.ToUpper(s)
	case "toLowerCase":
		return strings.ToLower(s)
	default:
		return s
	}
}

func stringify(v interface{}) string {
	switch tv := v.(type) {
	case nil:
		return ""
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	default:
		return fmt.Sprintf("%v", tv)
	}
}
