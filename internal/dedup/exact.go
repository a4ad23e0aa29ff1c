package dedup

import (
	"crypto/sha256"
	"sort"
)

// CollapseExact removes byte-identical documents, keeping at most one per
// distinct text: the one with the greatest recency, ties broken toward the
// greater ID. Output is sorted by ID. Input documents must already be
// screened; CollapseExact itself never fails.
func CollapseExact(docs []Document) []Document {
	survivors := make(map[[sha256.Size]byte]Document, len(docs))
	for _, doc := range docs {
		digest := sha256.Sum256([]byte(doc.Text))
		current, ok := survivors[digest]
		if !ok || outranks(doc, current) {
			survivors[digest] = doc
		}
	}
	out := make([]Document, 0, len(survivors))
	for _, doc := range survivors {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// outranks reports whether a wins a duplicate relationship against b:
// greater recency first, greater ID on equal recency. This is a total
// order, so every duplicate group has exactly one winner.
func outranks(a, b Document) bool {
	if a.Recency.After(b.Recency) {
		return true
	}
	if a.Recency.Equal(b.Recency) {
		return a.ID > b.ID
	}
	return false
}
