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

package steps

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	maerrors "github.com/maflow/orchestrator/pkg/maerrors"
	"github.com/maflow/orchestrator/pkg/workflow"
)

// preferredNPMScripts is the priority order TestCommandDiscoveryStep
// checks among package.json's "scripts" before giving up on Node.
var preferredNPMScripts = []string{"test", "test:unit", "test:ci"}

// RegisterTestCommandDiscovery adds the "test_command_discovery" step
// type: detects the repository's test command by checking, in order, a
// context_request manifest, package.json scripts, Python test config
// files, Cargo.toml, go.mod, and a Makefile "test" target.
//
// Config: require_command (bool) - fail instead of returning an empty
// command when nothing is detected.
func RegisterTestCommandDiscovery(reg *workflow.Registry, deps Deps) {
	reg.Register("test_command_discovery", func(ctx context.Context, wctx *workflow.Context, cfg map[string]interface{}) (workflow.StepOutput, error) {
		requireCommand := configBool(cfg, "require_command", false)
		manifest := configMap(cfg, "manifest")

		command, source, language := discoverTestCommand(wctx.RepoRoot, manifest)
		if command == "" && requireCommand {
			return workflow.StepOutput{}, &maerrors.ValidationError{
				Field:   "test_command",
				Message: "no test command could be detected and require_command is set",
			}
		}

		return workflow.StepOutput{Data: map[string]interface{}{
			"command":  command,
			"source":   source,
			"language": language,
			"found":    command != "",
		}}, nil
	})
}

func discoverTestCommand(repoRoot string, manifest map[string]interface{}) (command, source, language string) {
	if manifest != nil {
		if cmd, ok := manifest["test_command"].(string); ok && cmd != "" {
			src, _ := manifest["source"].(string)
			if src == "" {
				src = "context_request manifest"
			}
			lang, _ := manifest["language"].(string)
			return cmd, src, lang
		}
	}

	if path := filepath.Join(repoRoot, "package.json"); fileExists(path) {
		if cmd, script, ok := npmTestCommand(path); ok {
			return cmd, "package.json:" + script, "javascript"
		}
	}

	for _, name := range []string{"pyproject.toml", "pytest.ini", "tox.ini", "setup.cfg"} {
		path := filepath.Join(repoRoot, name)
		if !fileExists(path) {
			continue
		}
		if name == "tox.ini" {
			return "tox", name, "python"
		}
		return "pytest", name, "python"
	}

	if fileExists(filepath.Join(repoRoot, "Cargo.toml")) {
		return "cargo test", "Cargo.toml", "rust"
	}

	if fileExists(filepath.Join(repoRoot, "go.mod")) {
		return "go test ./...", "go.mod", "go"
	}

	if path := filepath.Join(repoRoot, "Makefile"); fileExists(path) {
		if hasMakeTestTarget(path) {
			return "make test", "Makefile", ""
		}
	}

	return "", "", ""
}

func npmTestCommand(packageJSONPath string) (command, script string, ok bool) {
	data, err := os.ReadFile(packageJSONPath)
	if err != nil {
		return "", "", false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", "", false
	}
	for _, candidate := range preferredNPMScripts {
		if _, present := pkg.Scripts[candidate]; present {
			if candidate == "test" {
				return "npm test", candidate, true
			}
			return "npm run " + candidate, candidate, true
		}
	}
	return "", "", false
}

var makeTestTargetPattern = regexp.MustCompile(`(?m)^test\s*:`)

func hasMakeTestTarget(makefilePath string) bool {
	data, err := os.ReadFile(makefilePath)
	if err != nil {
		return false
	}
	return makeTestTargetPattern.MatchString(string(data))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// languageRemediation maps a detected (or guessed) language to the
// TestHarnessSynthesisStep's remediation plan text, used when no test
// command could be found at all.
func languageRemediation(language string) (framework, plan string) {
	switch strings.ToLower(language) {
	case "python":
		return "pytest", "Add a pytest configuration (pyproject.toml [tool.pytest.ini_options] or pytest.ini) and at least one test module under tests/."
	case "rust":
		return "cargo test", "Add #[cfg(test)] modules or a tests/ directory so `cargo test` has something to run."
	case "go":
		return "go test", "Add _test.go files alongside the packages under test so `go test ./...` has something to run."
	default:
		return "Vitest", "Add a package.json \"test\" script (e.g. vitest run) and at least one *.test.ts file."
	}
}
