package services

import "math"

// Score maps accumulated usage to an attention score in [0, 100]. Zero usage
// scores 100; usage at or beyond the allowed budget scores 0. More usage
// never increases the score.
func Score(usageMs, allowedMs int64) int {
	if allowedMs <= 0 {
		return 0
	}
	if usageMs < 0 {
		return 100
	}

	raw := 100 - float64(usageMs)/float64(allowedMs)*100
	score := int(math.Round(raw))

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
