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

// Package subworkflow loads nested workflow definitions referenced by a
// "workflow" step or invoked directly by the coordinator (the
// review-failure-handling flow), with path-escape protection, symlink
// rejection, recursion/depth limits, and modtime-based caching.
package subworkflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/maflow/orchestrator/pkg/workflow"
)

// MaxNestingDepth bounds how many levels a sub-workflow may nest before
// Load refuses to go further.
const MaxNestingDepth = 5

// Loader loads, validates, and caches workflow definitions referenced by
// path relative to a base directory.
type Loader struct {
	mu    sync.RWMutex
	cache map[string]*cacheEntry
}

type cacheEntry struct {
	definition *workflow.Definition
	modTime    time.Time
}

// LoadContext tracks the call stack and nesting depth across a chain of
// recursive Load calls so cycles and runaway nesting are caught before
// they cause a stack overflow or an infinite workflow run.
type LoadContext struct {
	callStack []string
	depth     int
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{cache: make(map[string]*cacheEntry)}
}

// Load reads and parses the workflow definition at path relative to
// baseDir. ctx may be nil for a top-level load; Load builds the
// continuation context for any sub-workflows the loaded definition
// itself references.
func (l *Loader) Load(baseDir, path string, ctx *LoadContext) (*workflow.Definition, error) {
	if err := validatePath(path); err != nil {
		return nil, fmt.Errorf("invalid sub-workflow path: %w", err)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(absBase, path))
	if err != nil {
		return nil, fmt.Errorf("resolve sub-workflow path: %w", err)
	}

	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("sub-workflow path escapes base directory: %s", path)
	}
	if err := rejectSymlinks(absBase, relPath); err != nil {
		return nil, fmt.Errorf("sub-workflow path rejected: %w", err)
	}

	if ctx == nil {
		ctx = &LoadContext{}
	}
	if ctx.depth >= MaxNestingDepth {
		return nil, fmt.Errorf("sub-workflow nesting exceeds max depth (%d): %s", MaxNestingDepth, path)
	}
	for _, seen := range ctx.callStack {
		if seen == absPath {
			return nil, fmt.Errorf("sub-workflow recursion detected: %s -> %s", strings.Join(ctx.callStack, " -> "), path)
		}
	}

	if def, ok := l.fromCache(absPath); ok {
		return def, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read sub-workflow file: %w", err)
	}
	def, err := workflow.ParseDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("parse sub-workflow %s: %w", path, err)
	}

	childCtx := ctx.descend(absPath)
	childDir := filepath.Dir(absPath)
	for _, step := range def.Steps {
		if step.Type != "workflow" {
			continue
		}
		nested, _ := step.Config["workflow"].(string)
		if nested == "" {
			continue
		}
		if _, err := l.Load(childDir, nested, childCtx); err != nil {
			return nil, fmt.Errorf("nested sub-workflow %s: %w", nested, err)
		}
	}

	l.store(absPath, def)
	return def, nil
}

// Descend returns the LoadContext a nested Load call should use once the
// current one has resolved to absPath.
func (ctx *LoadContext) descend(absPath string) *LoadContext {
	stack := make([]string, len(ctx.callStack), len(ctx.callStack)+1)
	copy(stack, ctx.callStack)
	return &LoadContext{callStack: append(stack, absPath), depth: ctx.depth + 1}
}

func (l *Loader) fromCache(absPath string) (*workflow.Definition, bool) {
	l.mu.RLock()
	entry, ok := l.cache[absPath]
	l.mu.RUnlock()
	if !ok {
		return nil, false
	}
	info, err := os.Stat(absPath)
	if err != nil || !info.ModTime().Equal(entry.modTime) {
		l.mu.Lock()
		delete(l.cache, absPath)
		l.mu.Unlock()
		return nil, false
	}
	return entry.definition, true
}

func (l *Loader) store(absPath string, def *workflow.Definition) {
	info, err := os.Stat(absPath)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[absPath] = &cacheEntry{definition: def, modTime: info.ModTime()}
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative: %s", path)
	}
	return nil
}

// rejectSymlinks walks the components the caller supplied (relPath) and
// refuses any of them that resolve through a symlink. baseDir itself is
// trusted and not re-checked.
func rejectSymlinks(baseDir, relPath string) error {
	if relPath == "." {
		return nil
	}
	current := baseDir
	for _, component := range strings.Split(filepath.Clean(relPath), string(filepath.Separator)) {
		if component == "" || component == "." {
			continue
		}
		current = filepath.Join(current, component)
		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("path component is a symlink: %s", current)
		}
	}
	return nil
}
