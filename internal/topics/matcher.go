package topics

import "strings"

// jaccardThreshold is the word-set similarity above which two titles are
// considered the same topic. Strictly greater-than: a 0.8 score is not a
// duplicate.
const jaccardThreshold = 0.8

// IsDuplicate reports whether the candidate title duplicates any topic in
// the index: an exact normalized match, or a word-set Jaccard similarity
// above the threshold against any entry. An empty normalized candidate is
// never a duplicate; callers filter empty titles before planning.
//
// Cost is O(index size) per candidate, fine for batch planning against
// indexes in the thousands.
func IsDuplicate(candidate string, idx *Index) bool {
	normalized := Normalize(candidate)
	if normalized == "" {
		return false
	}
	if idx.Contains(normalized) {
		return true
	}

	words := wordSet(normalized)
	for _, topic := range idx.order {
		if jaccard(words, wordSet(topic)) > jaccardThreshold {
			return true
		}
	}
	return false
}

func wordSet(normalized string) map[string]struct{} {
	fields := strings.Fields(normalized)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over word sets, not multisets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
