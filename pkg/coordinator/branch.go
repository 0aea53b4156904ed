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

package coordinator

import (
	"regexp"
	"strings"
)

var (
	slugDisallowed  = regexp.MustCompile(`[^a-z0-9]+`)
	slugTrimDashes  = regexp.MustCompile(`^-+|-+$`)
	genericSlugForm = map[string]bool{"milestone": true}
)

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single hyphen, trimming leading/trailing hyphens.
// Returns "task" for an input with no alphanumeric content at all.
func Slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := slugDisallowed.ReplaceAllString(lower, "-")
	slug = slugTrimDashes.ReplaceAllString(slug, "")
	if slug == "" {
		return "task"
	}
	return slug
}

// SelectBranch implements the branch-selection precedence: an explicit
// branch name from the task-flow payload always wins; otherwise a
// feature branch named after the task; otherwise a milestone branch,
// skipped when the milestone's own slug is the literal generic string
// "milestone" (which would otherwise collide across every milestone-less
// task); the final fallback is a milestone branch named after the
// project itself, so every task lands somewhere deterministic.
func SelectBranch(payloadBranch, taskSlug, milestoneSlug, projectSlug string) string {
	if payloadBranch != "" {
		return payloadBranch
	}
	if taskSlug != "" {
		return "feat/" + taskSlug
	}
	if milestoneSlug != "" && !genericSlugForm[strings.ToLower(milestoneSlug)] {
		return "milestone/" + milestoneSlug
	}
	return "milestone/" + projectSlug
}
