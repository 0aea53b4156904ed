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

package taskcreation

import (
	"fmt"
	"strings"
)

var blockedLabels = map[string]bool{
	"analysis":           true,
	"analysis-follow-up": true,
	"analysis_follow_up": true,
	"review-follow-up":   true,
	"review_follow_up":   true,
}

// NormalizeLabels strips the blocked labels (case-insensitively, both
// hyphenated and underscored spellings) and always includes
// "review-follow-up", "<review_type>-follow-up", and "urgent" when the
// follow-up is urgent.
func NormalizeLabels(raw []string, reviewType string, urgent bool) []string {
	seen := make(map[string]bool, len(raw)+3)
	out := make([]string, 0, len(raw)+3)

	add := func(label string) {
		key := strings.ToLower(label)
		if label == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, label)
	}

	for _, l := range raw {
		if blockedLabels[strings.ToLower(l)] {
			continue
		}
		add(l)
	}
	add("review-follow-up")
	if reviewType != "" {
		add(fmt.Sprintf("%s-follow-up", strings.ToLower(reviewType)))
	}
	if urgent {
		add("urgent")
	}
	return out
}
