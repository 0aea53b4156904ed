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

import "testing"

func TestNormalizeTitle_SynthesizesFromParentWhenEmpty(t *testing.T) {
	got := NormalizeTitle("", "Checkout fails on discount codes", "qa", true)
	if got != urgentMarker+" [QA] Checkout fails on discount codes" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeTitle_AddsLabelPrefixOnce(t *testing.T) {
	got := NormalizeTitle("[QA] already tagged", "", "qa", false)
	if got != deferredMarker+" [QA] already tagged" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeTitle_DoesNotDoublePrefixMarker(t *testing.T) {
	first := NormalizeTitle("flaky retry logic", "", "code_review", true)
	second := NormalizeTitle(first, "", "code_review", true)
	if first != second {
		t.Fatalf("re-normalizing changed the title: %q -> %q", first, second)
	}
}

func TestNormalizeTitle_DeferredMarkerForNonUrgent(t *testing.T) {
	got := NormalizeTitle("cleanup log noise", "", "code_review", false)
	if got[:len(deferredMarker)] != deferredMarker {
		t.Fatalf("got %q, expected deferred marker prefix", got)
	}
}
