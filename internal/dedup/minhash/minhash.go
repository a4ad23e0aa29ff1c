// Package minhash computes fixed-width MinHash signatures over shingle
// sets. The fraction of equal slots between two signatures estimates the
// Jaccard similarity of the underlying sets.
//
// The hash family is one well-mixed 64-bit hash seeded per slot: each
// shingle is hashed once with FNV-1a, then finalised against every slot
// seed, so signing costs one string hash plus numHashes integer mixes per
// shingle. Seeds derive deterministically from a fixed base, keeping
// signatures comparable across processes and runs.
package minhash

import (
	"fmt"
	"math"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

// EmptySlot fills every slot of a signature computed from an empty shingle
// set. Callers must keep such signatures out of any index: two empty
// documents would otherwise estimate as identical.
const EmptySlot uint64 = math.MaxUint64

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211

	// golden-gamma increment of the splitmix64 generator
	seedGamma = 0x9E3779B97F4A7C15
)

// Hasher holds a deterministic family of seeded hash functions, one per
// signature slot.
type Hasher struct {
	seeds []uint64
}

// NewHasher creates a hash family of the given width.
func NewHasher(numHashes int) (*Hasher, error) {
	if numHashes < 1 {
		return nil, fmt.Errorf("signature width must be >= 1, got %d: %w", numHashes, apperrors.ErrInvalidInput)
	}
	seeds := make([]uint64, numHashes)
	state := uint64(seedGamma)
	for i := range seeds {
		state += seedGamma
		seeds[i] = mix64(state)
	}
	return &Hasher{seeds: seeds}, nil
}

// NumHashes returns the signature width this hasher produces.
func (h *Hasher) NumHashes() int {
	return len(h.seeds)
}

// Signature returns the slot-wise unsigned minimum of every seeded hash
// over the shingle set. An empty set yields EmptySlot in every position.
func (h *Hasher) Signature(shingles map[string]struct{}) []uint64 {
	sig := make([]uint64, len(h.seeds))
	for i := range sig {
		sig[i] = EmptySlot
	}
	for s := range shingles {
		base := fnv64a(s)
		for i, seed := range h.seeds {
			if v := mix64(base ^ seed); v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Similarity estimates Jaccard similarity as the fraction of matching
// slots. Signatures of different widths are not comparable.
func Similarity(a, b []uint64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("signature widths differ (%d vs %d): %w", len(a), len(b), apperrors.ErrInvalidInput)
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("zero-width signature: %w", apperrors.ErrInvalidInput)
	}
	matching := 0
	for i := range a {
		if a[i] == b[i] {
			matching++
		}
	}
	return float64(matching) / float64(len(a)), nil
}

func fnv64a(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

// mix64 is the splitmix64 finaliser. It disperses single-bit input
// differences across all 64 output bits, which is what lets one base hash
// per shingle stand in for an independent hash per seed.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return x
}
