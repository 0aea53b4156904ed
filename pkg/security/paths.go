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
	"net"
	"os"
	"path/filepath"
	"strings"
)

// expandHomePaths expands ~ to the home directory in paths, and resolves
// relative paths to absolute ones.
func expandHomePaths(paths []string) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return paths
	}

	expanded := make([]string, len(paths))
	for i, p := range paths {
		if strings.HasPrefix(p, "~/") {
			expanded[i] = filepath.Join(home, p[2:])
		} else if p == "~" {
			expanded[i] = home
		} else if abs, err := filepath.Abs(p); err == nil {
			expanded[i] = abs
		} else {
			expanded[i] = p
		}
	}
	return expanded
}

// matchesPath checks if path matches pattern, supporting wildcards like
// /**/*.env and directory-prefix containment.
func matchesPath(path, pattern string) bool {
	if strings.HasPrefix(pattern, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			pattern = filepath.Join(home, pattern[2:])
		}
	} else if pattern == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			pattern = home
		}
	}

	if !filepath.IsAbs(pattern) {
		if abs, err := filepath.Abs(pattern); err == nil {
			pattern = abs
		}
	}

	if strings.Contains(pattern, "*") {
		if matched, err := filepath.Match(pattern, path); err == nil && matched {
			return true
		}

		if strings.Contains(pattern, "/**/") {
			parts := strings.Split(pattern, "/**/")
			if len(parts) == 2 {
				prefix, suffix := parts[0], parts[1]
				if strings.HasPrefix(path, prefix) {
					if suffix == "" {
						return true
					}
					if matched, err := filepath.Match(suffix, filepath.Base(path)); err == nil && matched {
						return true
					}
				}
			}
		}
	}

	rel, err := filepath.Rel(pattern, path)
	if err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) {
		return true
	}

	return false
}

// matchesHost checks if host matches pattern, supporting exact match,
// port-stripped match, and *.example.com suffix wildcards.
func matchesHost(host, pattern string) bool {
	if host == pattern {
		return true
	}

	hostWithoutPort := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostWithoutPort = h
	}

	if hostWithoutPort == pattern {
		return true
	}

	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:]
		if strings.HasSuffix(hostWithoutPort, suffix) {
			return true
		}
	}

	return false
}
