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

package persona

import "testing"

func TestCheckLanguagePolicy_EmptyAllowedLanguagesDoesNotApply(t *testing.T) {
	violations := CheckLanguagePolicy(nil, []string{"main.py", "app.rb"})
	if violations != nil {
		t.Fatalf("expected no violations when allowedLanguages is empty, got %v", violations)
	}
}

func TestCheckLanguagePolicy_DisallowedKnownLanguageViolates(t *testing.T) {
	violations := CheckLanguagePolicy([]string{"go"}, []string{"main.py"})
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(violations))
	}
	if violations[0].File != "main.py" || violations[0].Language != "python" {
		t.Fatalf("unexpected violation: %+v", violations[0])
	}
}

func TestCheckLanguagePolicy_AllowedLanguagePasses(t *testing.T) {
	violations := CheckLanguagePolicy([]string{"go"}, []string{"main.go", "util.go"})
	if violations != nil {
		t.Fatalf("expected no violations, got %v", violations)
	}
}

func TestCheckLanguagePolicy_UnknownExtensionNeverViolates(t *testing.T) {
	violations := CheckLanguagePolicy([]string{"go"}, []string{"README.md", "Makefile", "data.bin"})
	if violations != nil {
		t.Fatalf("expected unknown extensions to never violate, got %v", violations)
	}
}

func TestCheckLanguagePolicy_CaseInsensitiveAllowedList(t *testing.T) {
	violations := CheckLanguagePolicy([]string{"Go"}, []string{"main.go"})
	if violations != nil {
		t.Fatalf("expected allowed-language matching to be case-insensitive, got %v", violations)
	}
}

func TestCheckLanguagePolicy_MultipleViolationsAllReported(t *testing.T) {
	violations := CheckLanguagePolicy([]string{"go"}, []string{"main.py", "app.rb", "ok.go"})
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %+v", len(violations), violations)
	}
}
