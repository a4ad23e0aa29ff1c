package minhash

import (
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

func shingleSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, s := range items {
		set[s] = struct{}{}
	}
	return set
}

func TestSignatureLength(t *testing.T) {
	for _, width := range []int{1, 16, 128, 2048} {
		h, err := NewHasher(width)
		if err != nil {
			t.Fatalf("NewHasher(%d): %v", width, err)
		}
		sig := h.Signature(shingleSet("abcde", "bcdef"))
		if len(sig) != width {
			t.Errorf("width %d: signature has %d slots", width, len(sig))
		}
	}
}

func TestNewHasherRejectsZeroWidth(t *testing.T) {
	if _, err := NewHasher(0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero width, got %v", err)
	}
}

func TestIdenticalSetsMatchEverySlot(t *testing.T) {
	h, err := NewHasher(256)
	if err != nil {
		t.Fatal(err)
	}
	a := h.Signature(shingleSet("abcde", "bcdef", "cdefg"))
	b := h.Signature(shingleSet("cdefg", "abcde", "bcdef")) // same set, other order

	sim, err := Similarity(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if sim != 1.0 {
		t.Errorf("identical sets must match on every slot, got %v", sim)
	}
}

func TestDisjointSetsRarelyMatch(t *testing.T) {
	h, err := NewHasher(2048)
	if err != nil {
		t.Fatal(err)
	}
	a := make(map[string]struct{})
	b := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		a[fmt.Sprintf("left-%04d", i)] = struct{}{}
		b[fmt.Sprintf("right-%04d", i)] = struct{}{}
	}

	sim, err := Similarity(h.Signature(a), h.Signature(b))
	if err != nil {
		t.Fatal(err)
	}
	if sim > 0.05 {
		t.Errorf("disjoint sets should estimate near zero, got %v", sim)
	}
}

func TestEstimateTracksJaccard(t *testing.T) {
	// 150 shared shingles out of 200 in each set: J = 150/250 = 0.6.
	h, err := NewHasher(2048)
	if err != nil {
		t.Fatal(err)
	}
	a := make(map[string]struct{})
	b := make(map[string]struct{})
	for i := 0; i < 150; i++ {
		s := fmt.Sprintf("shared-%04d", i)
		a[s] = struct{}{}
		b[s] = struct{}{}
	}
	for i := 0; i < 50; i++ {
		a[fmt.Sprintf("only-a-%04d", i)] = struct{}{}
		b[fmt.Sprintf("only-b-%04d", i)] = struct{}{}
	}

	sim, err := Similarity(h.Signature(a), h.Signature(b))
	if err != nil {
		t.Fatal(err)
	}
	// 2048 slots give a standard error around 0.011; 0.1 is nine sigma.
	if sim < 0.5 || sim > 0.7 {
		t.Errorf("estimate %v too far from true Jaccard 0.6", sim)
	}
}

func TestDeterministicAcrossHashers(t *testing.T) {
	set := shingleSet("abcde", "bcdef", "cdefg", "defgh")

	h1, err := NewHasher(512)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := NewHasher(512)
	if err != nil {
		t.Fatal(err)
	}

	a := h1.Signature(set)
	b := h2.Signature(set)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("slot %d differs across hashers of equal width: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestEmptySetSentinel(t *testing.T) {
	h, err := NewHasher(64)
	if err != nil {
		t.Fatal(err)
	}
	sig := h.Signature(nil)
	for i, v := range sig {
		if v != EmptySlot {
			t.Fatalf("slot %d of empty-set signature is %d, want EmptySlot", i, v)
		}
	}
}

func TestSimilarityWidthMismatch(t *testing.T) {
	if _, err := Similarity(make([]uint64, 8), make([]uint64, 16)); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for width mismatch, got %v", err)
	}
	if _, err := Similarity(nil, nil); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero-width signatures, got %v", err)
	}
}

func TestUnionIsSlotwiseMin(t *testing.T) {
	// The signature of A∪B must equal the slot-wise unsigned minimum of the
	// signatures of A and B. Slot values land on both sides of 1<<63, so a
	// signed comparison anywhere in the min would flip some slot.
	h, err := NewHasher(2048)
	if err != nil {
		t.Fatal(err)
	}
	a := make(map[string]struct{})
	b := make(map[string]struct{})
	union := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		sa := fmt.Sprintf("left-%04d", i)
		sb := fmt.Sprintf("right-%04d", i)
		a[sa] = struct{}{}
		b[sb] = struct{}{}
		union[sa] = struct{}{}
		union[sb] = struct{}{}
	}

	sigA := h.Signature(a)
	sigB := h.Signature(b)
	sigU := h.Signature(union)
	for i := range sigU {
		want := sigA[i]
		if sigB[i] < want {
			want = sigB[i]
		}
		if sigU[i] != want {
			t.Fatalf("slot %d: union signature %d, want min(%d, %d)", i, sigU[i], sigA[i], sigB[i])
		}
	}
}
