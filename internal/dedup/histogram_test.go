package dedup

import "testing"

func TestCandidateHistogram(t *testing.T) {
	graph := Graph{
		"a": {"b", "c"},
		"b": {"a"},
		"c": {"a"},
		"d": nil,
		"e": nil,
	}

	hist := CandidateHistogram(graph)
	want := map[int]int{0: 2, 1: 2, 2: 1}
	if len(hist) != len(want) {
		t.Fatalf("histogram %v, want %v", hist, want)
	}
	for size, count := range want {
		if hist[size] != count {
			t.Errorf("histogram[%d] = %d, want %d", size, hist[size], count)
		}
	}
}

func TestCandidateHistogramEmptyGraph(t *testing.T) {
	if hist := CandidateHistogram(Graph{}); len(hist) != 0 {
		t.Errorf("empty graph should produce an empty histogram, got %v", hist)
	}
}
