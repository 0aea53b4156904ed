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

package security

import (
	"path/filepath"
	"testing"
)

func TestValidateArtifactPath_AllowsUnderArtifactDir(t *testing.T) {
	repoRoot := t.TempDir()
	path := filepath.Join(repoRoot, ArtifactDir, "context", "snapshot.json")

	if err := ValidateArtifactPath(repoRoot, path); err != nil {
		t.Fatalf("expected path under %s to be allowed, got error: %v", ArtifactDir, err)
	}
}

func TestValidateArtifactPath_RejectsOutsideArtifactDir(t *testing.T) {
	repoRoot := t.TempDir()
	path := filepath.Join(repoRoot, "src", "main.go")

	if err := ValidateArtifactPath(repoRoot, path); err == nil {
		t.Fatal("expected path outside .ma/ to be rejected")
	}
}

func TestValidateArtifactPath_RejectsTraversalEscape(t *testing.T) {
	repoRoot := t.TempDir()
	path := filepath.Join(repoRoot, ArtifactDir, "..", "..", "etc", "passwd")

	if err := ValidateArtifactPath(repoRoot, path); err == nil {
		t.Fatal("expected traversal escape to be rejected")
	}
}

func TestNewArtifactFileSecurityConfig_ScopesToArtifactDir(t *testing.T) {
	repoRoot := "/repo"
	cfg := NewArtifactFileSecurityConfig(repoRoot)

	if len(cfg.AllowedWritePaths) != 1 {
		t.Fatalf("expected exactly one allowed write path, got %d", len(cfg.AllowedWritePaths))
	}
	want := filepath.Join(repoRoot, ArtifactDir)
	if cfg.AllowedWritePaths[0] != want {
		t.Errorf("expected allowed write path %q, got %q", want, cfg.AllowedWritePaths[0])
	}
}
