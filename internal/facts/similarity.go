package facts

import "strings"

// DefaultSimilarityThreshold is where two facts start reading as the same
// claim with different phrasing.
const DefaultSimilarityThreshold = 0.6

// Similarity scores word overlap between two texts in [0, 1]. Punctuation
// and case are ignored.
func Similarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	union := len(wa) + len(wb) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// TooSimilar reports whether candidate overlaps any existing text above the
// threshold.
func TooSimilar(candidate string, existing []string, threshold float64) bool {
	for _, e := range existing {
		if Similarity(candidate, e) >= threshold {
			return true
		}
	}
	return false
}

func wordSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(normalize(text)) {
		set[w] = true
	}
	return set
}
