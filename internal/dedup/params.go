package dedup

import (
	"fmt"
	"runtime"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

// Params configures a deduplication run. The MinHash signature width is
// Bands*RowsPerBand. Threshold is the target minimum Jaccard similarity the
// band layout was chosen for; it is recorded with results but the index
// itself only ever does exact band matching.
type Params struct {
	NgramSize   int
	Bands       int
	RowsPerBand int
	Threshold   float64
	Workers     int
}

// DefaultParams returns the production parameter set: 5-byte shingles and a
// 16x128 band layout tuned for a 0.7 similarity cutoff.
func DefaultParams() Params {
	return Params{
		NgramSize:   5,
		Bands:       16,
		RowsPerBand: 128,
		Threshold:   0.7,
	}
}

// NumHashes returns the signature width implied by the band layout.
func (p Params) NumHashes() int {
	return p.Bands * p.RowsPerBand
}

// Validate rejects parameter sets that cannot produce a usable signature.
func (p Params) Validate() error {
	if p.NgramSize < 1 {
		return fmt.Errorf("ngram size must be >= 1, got %d: %w", p.NgramSize, apperrors.ErrInvalidInput)
	}
	if p.Bands < 1 {
		return fmt.Errorf("bands must be >= 1, got %d: %w", p.Bands, apperrors.ErrInvalidInput)
	}
	if p.RowsPerBand < 1 {
		return fmt.Errorf("rows per band must be >= 1, got %d: %w", p.RowsPerBand, apperrors.ErrInvalidInput)
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v: %w", p.Threshold, apperrors.ErrInvalidInput)
	}
	if p.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d: %w", p.Workers, apperrors.ErrInvalidInput)
	}
	return nil
}

// workerCount resolves Workers, defaulting to the number of usable CPUs.
func (p Params) workerCount() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}
