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

const (
	urgentMarker   = "\U0001F6A8" // 🚨
	deferredMarker = "\U0001F4CB" // 📋
)

// NormalizeTitle builds a follow-up task's title: an empty title
// is synthesized from the parent task's title, a "[<UPPER-LABEL>]" prefix
// is added for the review type unless already present, and urgent/
// deferred follow-ups get a visual 🚨/📋 marker — all without
// double-prefixing an already-normalized title (e.g. one a prior run
// already produced, or one the PM persona echoed verbatim).
func NormalizeTitle(rawTitle, parentTitle, reviewType string, urgent bool) string {
	base := strings.TrimSpace(rawTitle)
	if base == "" {
		base = strings.TrimSpace(parentTitle)
	}

	label := strings.ToUpper(strings.TrimSpace(reviewType))
	if label != "" {
		labelPrefix := fmt.Sprintf("[%s]", label)
		if !strings.Contains(strings.ToUpper(base), labelPrefix) {
			base = strings.TrimSpace(labelPrefix + " " + base)
		}
	}

	marker := deferredMarker
	if urgent {
		marker = urgentMarker
	}
	if !strings.HasPrefix(base, urgentMarker) && !strings.HasPrefix(base, deferredMarker) {
		base = strings.TrimSpace(marker + " " + base)
	}

	return base
}
