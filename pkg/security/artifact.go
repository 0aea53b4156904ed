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

import "path/filepath"

// ArtifactDir is the only directory a GitArtifactStep may write under,
// relative to the repository working copy root.
const ArtifactDir = ".ma"

// NewArtifactFileSecurityConfig returns a FileSecurityConfig scoped to writes
// under repoRoot/.ma/, used to guard persona-authored artifact writes before
// they are committed to the working copy.
func NewArtifactFileSecurityConfig(repoRoot string) *FileSecurityConfig {
	cfg := DefaultFileSecurityConfig()
	cfg.AllowedWritePaths = []string{filepath.Join(repoRoot, ArtifactDir)}
	cfg.VerboseErrors = true
	return cfg
}

// ValidateArtifactPath checks that path resolves to somewhere under
// repoRoot/.ma/, returning an error if it would escape that directory
// (via traversal or a symlink).
func ValidateArtifactPath(repoRoot, path string) error {
	return NewArtifactFileSecurityConfig(repoRoot).ValidatePath(path, ActionWrite)
}

// NewRepoReadSecurityConfig returns a FileSecurityConfig scoped to reads
// under repoRoot, used to guard a persona's repo_file info-request
// against escaping the working copy via traversal or a symlink.
func NewRepoReadSecurityConfig(repoRoot string) *FileSecurityConfig {
	cfg := DefaultFileSecurityConfig()
	cfg.AllowedReadPaths = []string{repoRoot}
	cfg.VerboseErrors = true
	return cfg
}
