package topics

import "strings"

// ExistingContent is the minimal view of an already-published or queued
// piece used for exclusion.
type ExistingContent struct {
	Title string
	Slug  string
}

// Index is the set of normalized topics a planning run must avoid.
// Built fresh per run and read-only afterwards.
type Index struct {
	set   map[string]struct{}
	order []string // first-seen order, used for bounded prompt samples
}

// NewIndex builds an exclusion index from existing content. Both the
// normalized title and the normalized slug (hyphens replaced by spaces)
// are inserted: slugs widen recall when a title was rephrased but the
// URL was not.
func NewIndex(existing []ExistingContent) *Index {
	idx := &Index{set: make(map[string]struct{}, len(existing)*2)}
	for _, c := range existing {
		idx.add(Normalize(c.Title))
		idx.add(Normalize(strings.ReplaceAll(c.Slug, "-", " ")))
	}
	return idx
}

func (idx *Index) add(topic string) {
	if topic == "" {
		return
	}
	if _, ok := idx.set[topic]; ok {
		return
	}
	idx.set[topic] = struct{}{}
	idx.order = append(idx.order, topic)
}

// Contains reports exact membership of an already-normalized topic.
func (idx *Index) Contains(normalized string) bool {
	_, ok := idx.set[normalized]
	return ok
}

// Topics returns all indexed topics in first-seen order.
func (idx *Index) Topics() []string {
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// Sample returns at most n topics in first-seen order. Used to bound the
// exclusion list embedded in a planning prompt; the duplicate filter
// itself always consults the full index.
func (idx *Index) Sample(n int) []string {
	if n >= len(idx.order) {
		return idx.Topics()
	}
	out := make([]string, n)
	copy(out, idx.order[:n])
	return out
}

// Len returns the number of distinct topics in the index.
func (idx *Index) Len() int {
	return len(idx.set)
}
