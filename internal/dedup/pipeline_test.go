package dedup

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

// randomText builds deterministic pseudo-random text so near-duplicate
// pairs have predictable shingle overlap.
func randomText(seed int64, length int) string {
	r := rand.New(rand.NewSource(seed))
	const letters = "abcdefghijklmnopqrstuvwxyz "
	b := make([]byte, length)
	for i := range b {
		b[i] = letters[r.Intn(len(letters))]
	}
	return string(b)
}

func mustRun(t *testing.T, params Params, docs []Document) *Result {
	t.Helper()
	p, err := New(params)
	if err != nil {
		t.Fatalf("building pipeline: %v", err)
	}
	result, err := p.Run(context.Background(), docs)
	if err != nil {
		t.Fatalf("running pipeline: %v", err)
	}
	return result
}

func TestRunExactCollapseScenario(t *testing.T) {
	// Two byte-identical texts collapse to the more recent one; a third,
	// unrelated text is untouched by the near-duplicate stage.
	docs := []Document{
		{ID: "1", Text: "abcdefghij", Recency: at(10)},
		{ID: "2", Text: "abcdefghij", Recency: at(20)},
		{ID: "3", Text: "zzzzzzzzzz", Recency: at(5)},
	}

	result := mustRun(t, DefaultParams(), docs)
	got := keptIDs(result.Kept)
	if len(got) != 2 || got[0] != "2" || got[1] != "3" {
		t.Fatalf("kept %v, want [2 3]", got)
	}
	if result.Stats.ExactDropped != 1 {
		t.Errorf("ExactDropped = %d, want 1", result.Stats.ExactDropped)
	}
	if result.Stats.NearDropped != 0 {
		t.Errorf("NearDropped = %d, want 0", result.Stats.NearDropped)
	}
}

func TestRunNearDuplicateScenario(t *testing.T) {
	// Appending one character leaves virtually every shingle shared, so the
	// pair must be detected as candidates and resolved by recency.
	base := randomText(42, 4000)
	docs := []Document{
		{ID: "older", Text: base, Recency: at(10)},
		{ID: "newer", Text: base + "?", Recency: at(20)},
		{ID: "other", Text: randomText(43, 4000), Recency: at(5)},
	}

	result := mustRun(t, DefaultParams(), docs)
	got := keptIDs(result.Kept)
	if len(got) != 2 || got[0] != "newer" || got[1] != "other" {
		t.Fatalf("kept %v, want [newer other]", got)
	}
	if result.Stats.NearDropped != 1 {
		t.Errorf("NearDropped = %d, want 1", result.Stats.NearDropped)
	}
	if result.Stats.Histogram[1] != 2 {
		t.Errorf("histogram should show the pair with one candidate each, got %v", result.Stats.Histogram)
	}
	if result.Stats.Histogram[0] != 1 {
		t.Errorf("histogram should show the unrelated doc with zero candidates, got %v", result.Stats.Histogram)
	}
}

func TestRunDeterminism(t *testing.T) {
	docs := []Document{
		{ID: "a", Text: randomText(1, 2000), Recency: at(1)},
		{ID: "b", Text: randomText(2, 2000), Recency: at(2)},
		{ID: "c", Text: randomText(1, 2000) + "tail", Recency: at(3)},
		{ID: "d", Text: randomText(2, 2000), Recency: at(4)},
		{ID: "e", Text: "tiny", Recency: at(5)},
	}

	first := mustRun(t, DefaultParams(), docs)
	second := mustRun(t, DefaultParams(), docs)

	a, b := keptIDs(first.Kept), keptIDs(second.Kept)
	if len(a) != len(b) {
		t.Fatalf("repeated runs differ: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("repeated runs differ: %v vs %v", a, b)
		}
	}
}

func TestRunShortDocumentsAlwaysKept(t *testing.T) {
	// Texts shorter than the n-gram size produce no shingles. They must
	// survive the run and never match each other through the sentinel.
	docs := []Document{
		{ID: "t1", Text: "abc", Recency: at(1)},
		{ID: "t2", Text: "xyz", Recency: at(2)},
		{ID: "t3", Text: "ab", Recency: at(3)},
	}

	result := mustRun(t, DefaultParams(), docs)
	if len(result.Kept) != 3 {
		t.Fatalf("short documents must all be kept, got %v", keptIDs(result.Kept))
	}
	if result.Stats.Histogram[0] != 3 {
		t.Errorf("short documents should have zero candidates, got %v", result.Stats.Histogram)
	}
}

func TestRunIdenticalShortTextsStillCollapseExactly(t *testing.T) {
	// The exact pre-pass sees short documents even though the
	// near-duplicate stage skips them.
	docs := []Document{
		{ID: "t1", Text: "abc", Recency: at(1)},
		{ID: "t2", Text: "abc", Recency: at(2)},
	}

	result := mustRun(t, DefaultParams(), docs)
	got := keptIDs(result.Kept)
	if len(got) != 1 || got[0] != "t2" {
		t.Fatalf("kept %v, want [t2]", got)
	}
}

func TestBandTradeOff(t *testing.T) {
	// Fixed signature width, two layouts: many short bands catch a
	// half-similar pair, few long bands do not. Candidate recall must not
	// shrink when bands increase at constant width.
	shared := randomText(7, 2000)
	docs := []Document{
		{ID: "a", Text: shared + randomText(8, 1000), Recency: at(1)},
		{ID: "b", Text: shared + randomText(9, 1000), Recency: at(2)},
	}

	strict := Params{NgramSize: 5, Bands: 4, RowsPerBand: 512, Threshold: 0.9}
	loose := Params{NgramSize: 5, Bands: 512, RowsPerBand: 4, Threshold: 0.2}

	strictResult := mustRun(t, strict, docs)
	looseResult := mustRun(t, loose, docs)

	if strictResult.Stats.NearDropped != 0 {
		t.Errorf("4x512 layout should not catch a ~0.5-Jaccard pair, dropped %d", strictResult.Stats.NearDropped)
	}
	if looseResult.Stats.NearDropped != 1 {
		t.Errorf("512x4 layout should catch the pair, dropped %d", looseResult.Stats.NearDropped)
	}

	strictCandidates := 0
	for size, count := range strictResult.Stats.Histogram {
		strictCandidates += size * count
	}
	looseCandidates := 0
	for size, count := range looseResult.Stats.Histogram {
		looseCandidates += size * count
	}
	if looseCandidates < strictCandidates {
		t.Errorf("more bands must not lower recall: loose %d < strict %d", looseCandidates, strictCandidates)
	}
}

func TestRunRejectsInvalidParams(t *testing.T) {
	cases := []Params{
		{NgramSize: 0, Bands: 16, RowsPerBand: 128},
		{NgramSize: 5, Bands: 0, RowsPerBand: 128},
		{NgramSize: 5, Bands: 16, RowsPerBand: 0},
		{NgramSize: 5, Bands: 16, RowsPerBand: 128, Threshold: 1.5},
	}
	for _, params := range cases {
		if _, err := New(params); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("params %+v: expected ErrInvalidInput, got %v", params, err)
		}
	}
}

func TestRunRejectsBadDocuments(t *testing.T) {
	p, err := New(DefaultParams())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := p.Run(context.Background(), []Document{{ID: "x", Text: "", Recency: at(1)}}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty text: expected ErrInvalidInput, got %v", err)
	}
	if _, err := p.Run(context.Background(), []Document{{ID: "", Text: "body", Recency: at(1)}}); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("empty id: expected ErrInvalidInput, got %v", err)
	}
	dup := []Document{
		{ID: "x", Text: "body one", Recency: at(1)},
		{ID: "x", Text: "body two", Recency: at(2)},
	}
	if _, err := p.Run(context.Background(), dup); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("duplicate id: expected ErrInvalidInput, got %v", err)
	}
}

func TestRunEmptyBatch(t *testing.T) {
	result := mustRun(t, DefaultParams(), nil)
	if len(result.Kept) != 0 {
		t.Errorf("empty batch should keep nothing, got %v", keptIDs(result.Kept))
	}
}

func TestRunHonoursCancellationBetweenStages(t *testing.T) {
	p, err := New(DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.Run(ctx, []Document{{ID: "a", Text: "some body text", Recency: at(1)}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCandidateGraphSymmetric(t *testing.T) {
	p, err := New(Params{NgramSize: 5, Bands: 32, RowsPerBand: 4, Threshold: 0.5})
	if err != nil {
		t.Fatal(err)
	}
	shared := randomText(11, 1500)
	docs := []Document{
		{ID: "a", Text: shared + randomText(12, 300), Recency: at(1)},
		{ID: "b", Text: shared + randomText(13, 300), Recency: at(2)},
		{ID: "c", Text: shared + randomText(14, 300), Recency: at(3)},
		{ID: "d", Text: randomText(15, 1500), Recency: at(4)},
	}

	var stats Stats
	sigs, err := p.signAll(context.Background(), &stats, docs)
	if err != nil {
		t.Fatal(err)
	}
	ix, err := p.indexAll(context.Background(), &stats, docs, sigs)
	if err != nil {
		t.Fatal(err)
	}
	graph, err := p.graphAll(context.Background(), &stats, docs, sigs, ix)
	if err != nil {
		t.Fatal(err)
	}

	for x, candidates := range graph {
		for _, y := range candidates {
			found := false
			for _, back := range graph[y] {
				if back == x {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("candidacy not symmetric: %s lists %s but not vice versa", x, y)
			}
		}
	}
}

func TestDeduplicateEntryPoint(t *testing.T) {
	docs := []Document{
		{ID: "1", Text: "abcdefghij", Recency: at(10)},
		{ID: "2", Text: "abcdefghij", Recency: at(20)},
	}

	kept, err := Deduplicate(context.Background(), docs, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(kept) != 1 || kept[0].ID != "2" {
		t.Fatalf("kept %v, want [2]", keptIDs(kept))
	}
}

// recordingObserver captures stage lifecycle callbacks.
type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
	progress int
}

func (o *recordingObserver) StageStarted(stage string, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, stage)
}

func (o *recordingObserver) StageProgress(stage string, completed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress++
}

func (o *recordingObserver) StageFinished(stage string, took time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, stage)
}

func TestObserverSeesEveryStage(t *testing.T) {
	obs := &recordingObserver{}
	p, err := New(DefaultParams(), WithObserver(obs))
	if err != nil {
		t.Fatal(err)
	}
	docs := []Document{
		{ID: "a", Text: randomText(21, 500), Recency: at(1)},
		{ID: "b", Text: randomText(22, 500), Recency: at(2)},
	}
	if _, err := p.Run(context.Background(), docs); err != nil {
		t.Fatal(err)
	}

	wantOrder := []string{StageExact, StageSignature, StageIndex, StageGraph, StageResolve}
	if len(obs.started) != len(wantOrder) {
		t.Fatalf("stages started %v, want %v", obs.started, wantOrder)
	}
	for i, stage := range wantOrder {
		if obs.started[i] != stage {
			t.Errorf("stage order: got %v, want %v", obs.started, wantOrder)
			break
		}
	}
	if len(obs.finished) != len(wantOrder) {
		t.Errorf("every started stage must finish: %v", obs.finished)
	}
	if obs.progress == 0 {
		t.Error("expected per-document progress callbacks")
	}
}
