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
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/sahilm/fuzzy"
)

// Strategy selects which duplicate-detection rule DetectDuplicate applies.
type Strategy string

const (
	StrategyExternalID        Strategy = "external_id"
	StrategyTitle             Strategy = "title"
	StrategyTitleAndMilestone Strategy = "title_and_milestone"
	StrategyContentHash       Strategy = "content_hash"
)

// ExistingTask is the subset of an existing dashboard task the
// duplicate detector compares a new candidate against.
type ExistingTask struct {
	ID            string
	ExternalID    string
	Title         string
	Description   string
	MilestoneSlug string
}

// Candidate is the task about to be created.
type Candidate struct {
	ExternalID    string
	Title         string
	Description   string
	MilestoneSlug string
}

// Match is the outcome of comparing Candidate against one ExistingTask.
type Match struct {
	ExistingTaskID string
	Score          float64 // 0-100
	Duplicate      bool
}

// DetectDuplicate scans existing for a task matching candidate under
// strategy, returning the highest-scoring duplicate found, if any.
func DetectDuplicate(strategy Strategy, candidate Candidate, existing []ExistingTask) (Match, bool) {
	var best Match
	found := false

	for _, e := range existing {
		m, ok := evaluate(strategy, candidate, e)
		if !ok {
			continue
		}
		if !found || m.Score > best.Score {
			best = m
			found = true
		}
	}
	return best, found
}

func evaluate(strategy Strategy, c Candidate, e ExistingTask) (Match, bool) {
	switch strategy {
	case StrategyExternalID:
		if c.ExternalID != "" && c.ExternalID == e.ExternalID {
			return Match{ExistingTaskID: e.ID, Score: 100, Duplicate: true}, true
		}
		return Match{}, false

	case StrategyTitle:
		score := titleOverlapScore(c.Title, e.Title)
		return Match{ExistingTaskID: e.ID, Score: score, Duplicate: score >= 80}, score >= 80

	case StrategyTitleAndMilestone:
		if c.MilestoneSlug != e.MilestoneSlug {
			return Match{}, false
		}
		titleScore := titleOverlapScore(c.Title, e.Title)
		descScore := wordOverlapScore(significantTokens(c.Description, 3), significantTokens(e.Description, 3))
		weighted := 0.7*titleScore + 0.3*descScore
		return Match{ExistingTaskID: e.ID, Score: weighted, Duplicate: weighted >= 60}, weighted >= 60

	case StrategyContentHash:
		return evaluateContentHash(c, e)

	default:
		return Match{}, false
	}
}

func evaluateContentHash(c Candidate, e ExistingTask) (Match, bool) {
	milestoneCompatible := c.MilestoneSlug == "" || e.MilestoneSlug == "" || c.MilestoneSlug == e.MilestoneSlug
	if !milestoneCompatible {
		return Match{}, false
	}

	cFingerprint := contentFingerprint(c.Title, c.Description, c.MilestoneSlug)
	eFingerprint := contentFingerprint(e.Title, e.Description, e.MilestoneSlug)

	// xxhash is a cheap 64-bit pre-filter: a mismatch here means the
	// fingerprints cannot possibly be equal, skipping the SHA-256 compare
	// and the fallback token-overlap scan entirely.
	if xxhash.Sum64String(cFingerprint) == xxhash.Sum64String(eFingerprint) {
		if sha256Hex(cFingerprint) == sha256Hex(eFingerprint) {
			return Match{ExistingTaskID: e.ID, Score: 100, Duplicate: true}, true
		}
	}

	overlap := wordOverlapScore(strings.Fields(cFingerprint), strings.Fields(eFingerprint))
	return Match{ExistingTaskID: e.ID, Score: overlap, Duplicate: overlap >= 70}, overlap >= 70
}

// contentFingerprint builds the sorted token fingerprint for the
// content_hash strategy: title words >= 4 chars, description words >=
// 4 chars, and the milestone slug, deduplicated and sorted so fingerprint
// equality is independent of word order.
func contentFingerprint(title, description, milestoneSlug string) string {
	tokens := append(significantTokens(title, 4), significantTokens(description, 4)...)
	if milestoneSlug != "" {
		tokens = append(tokens, milestoneSlug)
	}
	tokens = dedupeSorted(tokens)
	return strings.Join(tokens, " ")
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

var (
	emojiPattern   = regexp.MustCompile(`[\x{1F000}-\x{1FFFF}\x{2600}-\x{27BF}]`)
	bracketPattern = regexp.MustCompile(`\[[^\]]*\]`)
	commonVerbs    = map[string]bool{"fix": true, "add": true, "update": true, "remove": true, "implement": true, "refactor": true}
)

// titleOverlapScore applies the title-match rule: equal after
// normalization scores 100; otherwise a word-set overlap (using
// sahilm/fuzzy to tolerate minor spelling drift between two otherwise
// identical words) among words of length >= 3, with emojis, bracketed
// prefixes, and common leading verbs stripped first.
func titleOverlapScore(a, b string) float64 {
	na, nb := normalizeTitleForMatch(a), normalizeTitleForMatch(b)
	if na == nb {
		return 100
	}
	return wordOverlapScore(significantTokens(na, 3), significantTokens(nb, 3))
}

func normalizeTitleForMatch(title string) string {
	t := emojiPattern.ReplaceAllString(title, "")
	t = bracketPattern.ReplaceAllString(t, "")
	t = strings.ToLower(strings.TrimSpace(t))
	t = strings.TrimSuffix(t, ":")
	words := strings.Fields(t)
	filtered := words[:0]
	for i, w := range words {
		w = strings.TrimSuffix(w, ":")
		if i == 0 && commonVerbs[w] {
			continue
		}
		filtered = append(filtered, w)
	}
	return strings.Join(filtered, " ")
}

func significantTokens(text string, minLen int) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"()[]{}")
		if len(w) >= minLen {
			out = append(out, w)
		}
	}
	return out
}

func dedupeSorted(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// wordOverlapScore returns the percentage of the smaller token set that
// fuzzy-matches a token in the other set.
func wordOverlapScore(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shorter, longer := a, b
	if len(b) < len(a) {
		shorter, longer = b, a
	}

	matches := 0
	for _, word := range shorter {
		if wordMatches(word, longer) {
			matches++
		}
	}
	return (float64(matches) / float64(len(shorter))) * 100
}

// wordMatches reports whether word exactly equals, or closely
// fuzzy-matches, any entry in candidates.
func wordMatches(word string, candidates []string) bool {
	for _, c := range candidates {
		if c == word {
			return true
		}
	}
	matches := fuzzy.Find(word, candidates)
	for _, m := range matches {
		if m.Score >= fuzzyMatchThreshold(word) {
			return true
		}
	}
	return false
}

// fuzzyMatchThreshold scales sahilm/fuzzy's score (roughly proportional
// to match length minus gaps) to the word's own length, so a near-exact
// match on a long word is required to count, not just a short common
// substring.
func fuzzyMatchThreshold(word string) int {
	return len(word) * 2
}
