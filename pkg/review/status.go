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

package review

import (
	"regexp"
	"strings"
)

// zeroTestEvidence matches phrasing in a QA persona's free-form text that
// indicates no tests actually ran, even though the persona reported pass.
var zeroTestEvidence = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no tests? found`),
	regexp.MustCompile(`(?i)no tests? (were )?(executed|run)`),
	regexp.MustCompile(`(?i)0 tests? (executed|run|passed)`),
	regexp.MustCompile(`(?i)missing test (framework|harness|runner)`),
	regexp.MustCompile(`(?i)could not (locate|find) a test (command|runner|framework)`),
}

// InterpretStatus classifies a review-type persona's free-form result into
// {pass, fail, unknown}. text is the persona's natural-language output;
// payload is its parsed structured fields, if any (used to read an
// explicit "status" field and the tdd_red_phase_detected escape hatch).
func InterpretStatus(reviewType, text string, payload map[string]interface{}) Result {
	status, details := classify(text, payload)

	if reviewType == "qa" && status == StatusPass && evidencesZeroTests(text, payload) {
		if tddRedPhase(payload) {
			return Result{Status: status, Details: details, Payload: payload}
		}
		return Result{
			Status:     StatusFail,
			Details:    "QA reported pass but no tests appear to have executed: " + details,
			Payload:    payload,
			Downgraded: true,
		}
	}

	return Result{Status: status, Details: details, Payload: payload}
}

func classify(text string, payload map[string]interface{}) (Status, string) {
	if payload != nil {
		if raw, ok := payload["status"]; ok {
			if s, ok := raw.(string); ok {
				switch strings.ToLower(strings.TrimSpace(s)) {
				case "pass", "passed", "success":
					return StatusPass, text
				case "fail", "failed", "failure":
					return StatusFail, text
				}
			}
		}
	}

	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "all tests pass", "review passed", "looks good", "no blocking issues", "approved"):
		return StatusPass, text
	case containsAny(lower, "tests failed", "blocking issue", "changes requested", "rejected", "does not pass", "review failed"):
		return StatusFail, text
	default:
		return StatusUnknown, text
	}
}

func evidencesZeroTests(text string, payload map[string]interface{}) bool {
	if payload != nil {
		if count, ok := payload["tests_executed"]; ok {
			if n, ok := asInt(count); ok && n == 0 {
				return true
			}
		}
		if fw, ok := payload["test_framework"]; ok {
			if s, ok := fw.(string); ok && strings.TrimSpace(s) == "" {
				return true
			}
		}
	}
	for _, re := range zeroTestEvidence {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func tddRedPhase(payload map[string]interface{}) bool {
	if payload == nil {
		return false
	}
	v, ok := payload["tdd_red_phase_detected"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
