package lsh

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

// randomSignature fills a signature with deterministic pseudo-random rows.
func randomSignature(r *rand.Rand, width int) []uint64 {
	sig := make([]uint64, width)
	for i := range sig {
		sig[i] = r.Uint64()
	}
	return sig
}

func TestEmptyIndexQuery(t *testing.T) {
	ix, err := New(16, 8)
	if err != nil {
		t.Fatal(err)
	}
	sig := randomSignature(rand.New(rand.NewSource(1)), ix.SignatureLen())

	got, err := ix.Query(sig)
	if err != nil {
		t.Fatalf("query against empty index must not fail: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("query against empty index returned %v", got)
	}
}

func TestInsertQueryRoundTrip(t *testing.T) {
	ix, err := New(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	sig := randomSignature(rand.New(rand.NewSource(2)), ix.SignatureLen())
	if err := ix.Insert("doc-1", sig); err != nil {
		t.Fatal(err)
	}

	got, err := ix.Query(sig)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "doc-1" {
		t.Errorf("expected the inserted id back, got %v", got)
	}
}

func TestSelfNotExcluded(t *testing.T) {
	// Self-exclusion belongs to the graph builder, not the index.
	ix, err := New(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	sig := randomSignature(rand.New(rand.NewSource(3)), ix.SignatureLen())
	if err := ix.Insert("doc-1", sig); err != nil {
		t.Fatal(err)
	}

	got, err := ix.Query(sig)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("index layer must return the querying id itself, got %v", got)
	}
}

func TestSingleBandMatchSuffices(t *testing.T) {
	ix, err := New(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewSource(4))
	a := randomSignature(r, ix.SignatureLen())
	b := randomSignature(r, ix.SignatureLen())
	copy(b[16:24], a[16:24]) // share band 2 only

	if err := ix.Insert("a", a); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert("b", b); err != nil {
		t.Fatal(err)
	}

	got, err := ix.Query(a)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("one shared band should produce candidacy, got %v", got)
	}
}

func TestPartialBandNoMatch(t *testing.T) {
	// Band matching is exact: sharing most of every band is not enough.
	ix, err := New(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewSource(5))
	a := randomSignature(r, ix.SignatureLen())
	b := make([]uint64, len(a))
	copy(b, a)
	for band := 0; band < 4; band++ {
		b[band*8]++ // corrupt one row in every band
	}

	if err := ix.Insert("a", a); err != nil {
		t.Fatal(err)
	}
	if err := ix.Insert("b", b); err != nil {
		t.Fatal(err)
	}

	got, err := ix.Query(a)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("no fully matching band, expected only the querying doc, got %v", got)
	}
}

func TestCandidacyIsSymmetric(t *testing.T) {
	ix, err := New(8, 4)
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewSource(6))
	sigs := make(map[string][]uint64)
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("doc-%02d", i)
		sig := randomSignature(r, ix.SignatureLen())
		if i%3 == 0 {
			// Overlap a band with doc-00 to force some candidate pairs.
			copy(sig[0:4], sigs["doc-00"])
		}
		sigs[id] = sig
		if err := ix.Insert(id, sig); err != nil {
			t.Fatal(err)
		}
	}

	neighbours := make(map[string]map[string]bool)
	for id, sig := range sigs {
		got, err := ix.Query(sig)
		if err != nil {
			t.Fatal(err)
		}
		set := make(map[string]bool, len(got))
		for _, cand := range got {
			set[cand] = true
		}
		neighbours[id] = set
	}
	for x, set := range neighbours {
		for y := range set {
			if !neighbours[y][x] {
				t.Errorf("candidacy not symmetric: %s sees %s but not vice versa", x, y)
			}
		}
	}
}

func TestSignatureWidthMismatch(t *testing.T) {
	ix, err := New(16, 128)
	if err != nil {
		t.Fatal(err)
	}
	short := make([]uint64, 16*128-1)

	if err := ix.Insert("doc-1", short); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("insert with wrong width: expected ErrInvalidInput, got %v", err)
	}
	if _, err := ix.Query(short); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("query with wrong width: expected ErrInvalidInput, got %v", err)
	}
}

func TestInvalidLayout(t *testing.T) {
	if _, err := New(0, 128); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero bands: expected ErrInvalidInput, got %v", err)
	}
	if _, err := New(16, 0); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("zero rows: expected ErrInvalidInput, got %v", err)
	}
}

func TestConcurrentInsertsAreOrderIndependent(t *testing.T) {
	build := func() *Index {
		ix, err := New(8, 16)
		if err != nil {
			t.Fatal(err)
		}
		r := rand.New(rand.NewSource(7))
		shared := randomSignature(r, ix.SignatureLen())

		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			id := fmt.Sprintf("doc-%02d", i)
			sig := make([]uint64, len(shared))
			copy(sig, shared)
			sig[127] = uint64(i) // distinct last band, shared earlier bands
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := ix.Insert(id, sig); err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()
		return ix
	}

	first := build()
	second := build()
	probe := func(ix *Index) []string {
		r := rand.New(rand.NewSource(7))
		got, err := ix.Query(randomSignature(r, ix.SignatureLen()))
		if err != nil {
			t.Fatal(err)
		}
		if !sort.StringsAreSorted(got) {
			t.Error("query results must be sorted")
		}
		return got
	}

	a := probe(first)
	b := probe(second)
	if len(a) != 64 || len(b) != 64 {
		t.Fatalf("expected all 64 docs as candidates, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("concurrent insert schedules changed query output: %v vs %v", a, b)
		}
	}
}
