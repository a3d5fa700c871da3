/*
category.go - Fuzzy category label matching

PURPOSE:
  Maps a category label from a licensee's sales breakdown onto a contract's
  rate-schedule category. Licensees rarely type labels exactly as they appear
  on the contract ("Home Textiles" vs "Textiles"), so matching is
  case-insensitive and substring-tolerant - but deliberately deterministic.
  This is a financial tool: matching must be auditable and reproducible, so
  the rules are fixed string comparisons with a documented tie-break, not
  edit distance or anything probabilistic.

MATCH RULES (in order):
  1. Exact match after normalization (lowercase, trim) wins immediately.
  2. Substring match in either direction: the reported label contains the
     contract category, or the contract category contains the reported label.
  3. When several contract categories substring-match, the longest one wins
     (most specific). Equal lengths break ties lexicographically so results
     never depend on iteration order.
  4. No match -> ("", false). The calculator turns this into an
     UnmatchedCategoryError rather than dropping the revenue.
*/
package royalty

import "strings"

// NormalizeLabel lowercases and trims a category label. The ingestion layer
// uses the same normalization to group breakdown rows.
func NormalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// MatchCategory resolves a reported breakdown label against the contract's
// category labels. Returns the matched contract label (display form) and
// whether a match was found.
func MatchCategory(reported string, candidates []string) (string, bool) {
	normalized := NormalizeLabel(reported)
	if normalized == "" {
		return "", false
	}

	// Pass 1: exact normalized match short-circuits substring logic.
	for _, candidate := range candidates {
		if NormalizeLabel(candidate) == normalized {
			return candidate, true
		}
	}

	// Pass 2: substring in either direction, longest candidate wins.
	var best string
	var bestNorm string
	for _, candidate := range candidates {
		cn := NormalizeLabel(candidate)
		if cn == "" {
			continue
		}
		if !strings.Contains(normalized, cn) && !strings.Contains(cn, normalized) {
			continue
		}
		if betterMatch(cn, bestNorm) {
			best, bestNorm = candidate, cn
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}

// betterMatch reports whether candidate cn should replace the current best.
// Longer is more specific; equal lengths fall back to lexicographic order so
// the result is stable regardless of candidate ordering.
func betterMatch(cn, bestNorm string) bool {
	if bestNorm == "" {
		return true
	}
	if len(cn) != len(bestNorm) {
		return len(cn) > len(bestNorm)
	}
	return cn < bestNorm
}
