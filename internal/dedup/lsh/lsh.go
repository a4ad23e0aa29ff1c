// Package lsh provides a banded locality-sensitive index over MinHash
// signatures. A signature is split into contiguous bands; documents land in
// one bucket per band, keyed by a fingerprint of that band's rows. Two
// documents are candidate near-duplicates when any single band matches
// exactly, so insert and query both cost O(bands) regardless of corpus size.
package lsh

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// Index is a batch-scoped band index. It is safe for concurrent Insert and
// concurrent Query; callers must still complete all inserts before the
// first query, since candidate retrieval is only meaningful against the
// fully populated index.
type Index struct {
	bands       int
	rowsPerBand int
	shards      []bandShard
}

// bandShard holds one band's buckets under its own lock, so concurrent
// inserts only contend when they touch the same band.
type bandShard struct {
	mu      sync.RWMutex
	buckets map[uint64][]string
}

// New creates an Index for signatures of width bands*rowsPerBand.
func New(bands, rowsPerBand int) (*Index, error) {
	if bands < 1 {
		return nil, fmt.Errorf("bands must be >= 1, got %d: %w", bands, apperrors.ErrInvalidInput)
	}
	if rowsPerBand < 1 {
		return nil, fmt.Errorf("rows per band must be >= 1, got %d: %w", rowsPerBand, apperrors.ErrInvalidInput)
	}
	shards := make([]bandShard, bands)
	for i := range shards {
		shards[i].buckets = make(map[uint64][]string)
	}
	return &Index{
		bands:       bands,
		rowsPerBand: rowsPerBand,
		shards:      shards,
	}, nil
}

// SignatureLen returns the signature width this index accepts.
func (ix *Index) SignatureLen() int {
	return ix.bands * ix.rowsPerBand
}

// Insert adds id to one bucket per band.
func (ix *Index) Insert(id string, sig []uint64) error {
	if len(sig) != ix.SignatureLen() {
		return fmt.Errorf("signature width %d does not match index width %d: %w",
			len(sig), ix.SignatureLen(), apperrors.ErrInvalidInput)
	}
	for b := 0; b < ix.bands; b++ {
		fp := fingerprint(sig[b*ix.rowsPerBand : (b+1)*ix.rowsPerBand])
		shard := &ix.shards[b]
		shard.mu.Lock()
		shard.buckets[fp] = append(shard.buckets[fp], id)
		shard.mu.Unlock()
	}
	return nil
}

// Query returns the sorted ids sharing at least one band bucket with the
// given signature. The querying document's own id is included when it was
// inserted; self-exclusion is the caller's concern. An empty index yields
// an empty result.
func (ix *Index) Query(sig []uint64) ([]string, error) {
	if len(sig) != ix.SignatureLen() {
		return nil, fmt.Errorf("signature width %d does not match index width %d: %w",
			len(sig), ix.SignatureLen(), apperrors.ErrInvalidInput)
	}
	seen := make(map[string]struct{})
	for b := 0; b < ix.bands; b++ {
		fp := fingerprint(sig[b*ix.rowsPerBand : (b+1)*ix.rowsPerBand])
		shard := &ix.shards[b]
		shard.mu.RLock()
		for _, id := range shard.buckets[fp] {
			seen[id] = struct{}{}
		}
		shard.mu.RUnlock()
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// fingerprint hashes a band's rows with FNV-1a over their little-endian
// bytes. A 64-bit fingerprint collision can only add a spurious candidate,
// never lose one.
func fingerprint(rows []uint64) uint64 {
	h := uint64(fnvOffset64)
	var buf [8]byte
	for _, v := range rows {
		binary.LittleEndian.PutUint64(buf[:], v)
		for _, c := range buf {
			h ^= uint64(c)
			h *= fnvPrime64
		}
	}
	return h
}
