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

package subworkflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeWorkflowFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

const minimalWorkflow = `
name: review-failure-handling
steps:
  - name: normalize
    type: noop
`

func TestLoader_LoadsAndCachesByModTime(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "child.yaml", minimalWorkflow)

	l := NewLoader()
	def1, err := l.Load(dir, "child.yaml", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def2, err := l.Load(dir, "child.yaml", nil)
	if err != nil {
		t.Fatalf("load again: %v", err)
	}
	if def1 != def2 {
		t.Fatal("expected second load to return the cached definition instance")
	}

	// Rewrite the file with an extra step and a later modtime; cache must
	// be invalidated.
	time.Sleep(10 * time.Millisecond)
	writeWorkflowFile(t, dir, "child.yaml", minimalWorkflow+"\n  - name: extra\n    type: noop\n")
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(filepath.Join(dir, "child.yaml"), future, future); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	def3, err := l.Load(dir, "child.yaml", nil)
	if err != nil {
		t.Fatalf("load after modification: %v", err)
	}
	if len(def3.Steps) != 2 {
		t.Fatalf("expected cache to be invalidated after file modification, got %d steps", len(def3.Steps))
	}
}

func TestLoader_RejectsPathEscapingBaseDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "workflows")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeWorkflowFile(t, dir, "outside.yaml", minimalWorkflow)

	l := NewLoader()
	if _, err := l.Load(sub, "../outside.yaml", nil); err == nil {
		t.Fatal("expected an error for a path escaping the base directory")
	}
}

func TestLoader_RejectsAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader()
	if _, err := l.Load(dir, "/etc/passwd", nil); err == nil {
		t.Fatal("expected an error for an absolute sub-workflow path")
	}
}

func TestLoader_DetectsDirectRecursion(t *testing.T) {
	dir := t.TempDir()
	writeWorkflowFile(t, dir, "self.yaml", `
name: self
steps:
  - name: recurse
    type: workflow
    config:
      workflow: self.yaml
`)

	l := NewLoader()
	if _, err := l.Load(dir, "self.yaml", nil); err == nil {
		t.Fatal("expected recursion to be detected")
	}
}

func TestLoader_EnforcesMaxNestingDepth(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i <= MaxNestingDepth; i++ {
		name := filepath.Join(dir, levelName(i))
		next := levelName(i + 1)
		writeWorkflowFile(t, dir, levelName(i), `
name: level
steps:
  - name: go_deeper
    type: workflow
    config:
      workflow: `+next+`
`)
		_ = name
	}
	// final level has no further nesting
	writeWorkflowFile(t, dir, levelName(MaxNestingDepth+1), minimalWorkflow)

	l := NewLoader()
	if _, err := l.Load(dir, levelName(0), nil); err == nil {
		t.Fatal("expected nesting beyond MaxNestingDepth to be rejected")
	}
}

func levelName(i int) string {
	return "level" + string(rune('0'+i)) + ".yaml"
}
