// Package dedup implements two-stage corpus deduplication: an exact
// pre-pass that collapses byte-identical texts by content hash, followed by
// near-duplicate detection using MinHash signatures and LSH banding. The
// final kept set is chosen by a greedy recency tie-break over the candidate
// graph.
//
// All structures are batch-scoped: a Pipeline run builds its index, queries
// it, resolves winners, and discards everything but the result. The package
// performs no I/O.
package dedup

import (
	"fmt"
	"time"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

// Document is the unit of deduplication. ID is the stable identity, Text is
// the raw body, and Recency orders documents when duplicates collide (newer
// wins). Documents are immutable once handed to the pipeline.
type Document struct {
	ID      string
	Text    string
	Recency time.Time
}

// Rejection pairs a document ID with the reason it was screened out.
type Rejection struct {
	ID  string
	Err error
}

// Screen splits a batch into documents fit for deduplication and
// per-document rejections (empty ID, empty text, duplicate ID). Callers that
// tolerate partial batches screen first and run the pipeline on the valid
// remainder; Run itself rejects the whole batch on the first bad document.
func Screen(docs []Document) ([]Document, []Rejection) {
	valid := make([]Document, 0, len(docs))
	var rejected []Rejection
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if err := validateDocument(doc); err != nil {
			rejected = append(rejected, Rejection{ID: doc.ID, Err: err})
			continue
		}
		if _, dup := seen[doc.ID]; dup {
			rejected = append(rejected, Rejection{
				ID:  doc.ID,
				Err: fmt.Errorf("document %s: duplicate id in batch: %w", doc.ID, apperrors.ErrInvalidInput),
			})
			continue
		}
		seen[doc.ID] = struct{}{}
		valid = append(valid, doc)
	}
	return valid, rejected
}

func validateDocument(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document with empty id: %w", apperrors.ErrInvalidInput)
	}
	if doc.Text == "" {
		return fmt.Errorf("document %s: empty text: %w", doc.ID, apperrors.ErrInvalidInput)
	}
	return nil
}

func validateBatch(docs []Document) error {
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if err := validateDocument(doc); err != nil {
			return err
		}
		if _, dup := seen[doc.ID]; dup {
			return fmt.Errorf("document %s: duplicate id in batch: %w", doc.ID, apperrors.ErrInvalidInput)
		}
		seen[doc.ID] = struct{}{}
	}
	return nil
}
