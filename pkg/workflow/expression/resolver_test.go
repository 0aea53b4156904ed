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

import "testing"

func testVars() map[string]interface{} {
	return map[string]interface{}{
		"qa": map[string]interface{}{
			"status": "pass",
			"count":  float64(3),
		},
		"task": map[string]interface{}{
			"title": "fix login bug",
		},
	}
}

func TestResolve_WholeStringPreservesType(t *testing.T) {
	got := Resolve("${qa.count}", testVars())
	f, ok := got.(float64)
	if !ok || f != 3 {
		t.Fatalf("expected float64(3), got %#v", got)
	}
}

func TestResolve_WholeStringUnresolvedKeepsLiteral(t *testing.T) {
	got := Resolve("${missing.path}", testVars())
	if got != "${missing.path}" {
		t.Fatalf("expected unresolved template preserved literally, got %#v", got)
	}
}

func TestResolve_FragmentSubstitution(t *testing.T) {
	got := Resolve("QA result: ${qa.status}", testVars())
	if got != "QA result: pass" {
		t.Fatalf("unexpected fragment substitution result: %#v", got)
	}
}

func TestResolve_FragmentUnresolvedLeftAsLiteral(t *testing.T) {
	got := Resolve("QA result: ${qa.missing}", testVars())
	if got != "QA result: ${qa.missing}" {
		t.Fatalf("expected unresolved fragment preserved, got %#v", got)
	}
}

func TestResolve_Transform(t *testing.T) {
	got := Resolve("${task.title.toUpperCase()}", testVars())
	if got != "FIX LOGIN BUG" {
		t.Fatalf("expected upper-cased title, got %#v", got)
	}
}

func TestResolveAny_WalksNestedStructures(t *testing.T) {
	input := map[string]interface{}{
		"title": "${task.title}",
		"tags":  []interface{}{"${qa.status}", "static"},
	}
	got := ResolveAny(input, testVars()).(map[string]interface{})
	if got["title"] != "fix login bug" {
		t.Fatalf("expected resolved title, got %#v", got["title"])
	}
	tags := got["tags"].([]interface{})
	if tags[0] != "pass" || tags[1] != "static" {
		t.Fatalf("expected resolved tag slice, got %#v", tags)
	}
}

func TestResolvePath_MissingIntermediateReturnsNotOK(t *testing.T) {
	if _, ok := ResolvePath("qa.status.nested", testVars()); ok {
		t.Fatal("expected resolution through a string leaf to fail")
	}
}
