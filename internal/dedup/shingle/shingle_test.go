package shingle

import "testing"

func TestSetBasic(t *testing.T) {
	got := Set("abcdef", 5)

	want := []string{"abcde", "bcdef"}
	if len(got) != len(want) {
		t.Fatalf("expected %d shingles, got %d: %v", len(want), len(got), got)
	}
	for _, s := range want {
		if _, ok := got[s]; !ok {
			t.Errorf("missing shingle %q", s)
		}
	}
}

func TestSetLowercases(t *testing.T) {
	upper := Set("ABCDEF", 3)
	lower := Set("abcdef", 3)

	if len(upper) != len(lower) {
		t.Fatalf("case should not change shingle count: %d vs %d", len(upper), len(lower))
	}
	for s := range lower {
		if _, ok := upper[s]; !ok {
			t.Errorf("upper-case input missing shingle %q", s)
		}
	}
}

func TestSetRepeatsCollapse(t *testing.T) {
	// "zzzzzzzzzz" has six overlapping windows but only one distinct 5-gram.
	got := Set("zzzzzzzzzz", 5)
	if len(got) != 1 {
		t.Fatalf("expected 1 distinct shingle, got %d", len(got))
	}
	if _, ok := got["zzzzz"]; !ok {
		t.Error("expected the single shingle to be zzzzz")
	}
}

func TestSetShortText(t *testing.T) {
	if got := Set("abc", 5); len(got) != 0 {
		t.Errorf("text shorter than n should yield no shingles, got %v", got)
	}
	if got := Set("", 5); len(got) != 0 {
		t.Errorf("empty text should yield no shingles, got %v", got)
	}
}

func TestSetExactLength(t *testing.T) {
	got := Set("abcde", 5)
	if len(got) != 1 {
		t.Fatalf("text of exactly n bytes should yield one shingle, got %d", len(got))
	}
}

func TestSetInvalidN(t *testing.T) {
	if got := Set("abcdef", 0); len(got) != 0 {
		t.Errorf("n=0 should yield no shingles, got %v", got)
	}
	if got := Set("abcdef", -1); len(got) != 0 {
		t.Errorf("negative n should yield no shingles, got %v", got)
	}
}

func TestSetNonASCII(t *testing.T) {
	// Byte-oriented slicing may split multi-byte runes but must do so
	// identically for identical inputs and never panic.
	a := Set("héllo wörld, héllo", 5)
	b := Set("héllo wörld, héllo", 5)

	if len(a) == 0 {
		t.Fatal("expected shingles from non-ASCII text")
	}
	if len(a) != len(b) {
		t.Fatalf("identical inputs produced different sets: %d vs %d", len(a), len(b))
	}
	for s := range a {
		if _, ok := b[s]; !ok {
			t.Errorf("sets differ at shingle %q", s)
		}
	}
}
