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

import (
	"path/filepath"
	"strings"
)

// LanguageViolation names one changed file whose language isn't in the
// persona's allowed set.
type LanguageViolation struct {
	File     string
	Language string
}

// extensionLanguages maps a file extension (without the dot, lowercased)
// to the language name reviewer personas declare in allowed_languages.
var extensionLanguages = map[string]string{
	"go":    "go",
	"py":    "python",
	"rb":    "ruby",
	"js":    "javascript",
	"jsx":   "javascript",
	"ts":    "typescript",
	"tsx":   "typescript",
	"java":  "java",
	"kt":    "kotlin",
	"rs":    "rust",
	"c":     "c",
	"h":     "c",
	"cpp":   "cpp",
	"hpp":   "cpp",
	"cs":    "csharp",
	"php":   "php",
	"swift": "swift",
	"sh":    "shell",
	"yaml":  "yaml",
	"yml":   "yaml",
	"sql":   "sql",
}

// languageOf returns the declared language for a changed file path, or ""
// if the extension isn't in the known set (an unknown extension never
// triggers a violation; only a known, disallowed language does).
func languageOf(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return extensionLanguages[ext]
}

// CheckLanguagePolicy implements the language-policy guard: for a
// reviewer persona scoped to allowedLanguages, every changed file whose
// extension maps to a known, disallowed language is a violation. An empty
// allowedLanguages means the guard does not apply (the persona reviews
// everything).
func CheckLanguagePolicy(allowedLanguages []string, changedFiles []string) []LanguageViolation {
	if len(allowedLanguages) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(allowedLanguages))
	for _, lang := range allowedLanguages {
		allowed[strings.ToLower(lang)] = true
	}

	var violations []LanguageViolation
	for _, f := range changedFiles {
		lang := languageOf(f)
		if lang == "" {
			continue
		}
		if !allowed[lang] {
			violations = append(violations, LanguageViolation{File: f, Language: lang})
		}
	}
	return violations
}
