package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	cat, err := New(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := cat.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func TestDocumentLifecycle(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	committed := time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.UTC)
	docs := []Document{
		{ID: "doc-b", Text: "the second document", ContentHash: "hash-b", CommittedAt: committed.Add(time.Hour)},
		{ID: "doc-a", Text: "the first document", ContentHash: "hash-a", CommittedAt: committed},
	}
	for _, doc := range docs {
		if err := cat.PutDocument(ctx, doc); err != nil {
			t.Fatalf("PutDocument(%s): %v", doc.ID, err)
		}
	}

	n, err := cat.CountDocuments(ctx)
	if err != nil {
		t.Fatalf("CountDocuments: %v", err)
	}
	if n != 2 {
		t.Fatalf("CountDocuments = %d, want 2", n)
	}

	snapshot, err := cat.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("Snapshot returned %d documents, want 2", len(snapshot))
	}
	if snapshot[0].ID != "doc-a" || snapshot[1].ID != "doc-b" {
		t.Errorf("Snapshot order = [%s %s], want [doc-a doc-b]", snapshot[0].ID, snapshot[1].ID)
	}
	if !snapshot[0].Recency.Equal(committed) {
		t.Errorf("Recency round trip = %v, want %v", snapshot[0].Recency, committed)
	}
	if snapshot[1].Text != "the second document" {
		t.Errorf("Text = %q, want %q", snapshot[1].Text, "the second document")
	}
}

func TestPutDocumentReplaceClearsVerdict(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	doc := Document{ID: "doc-1", Text: "original", ContentHash: "h1", CommittedAt: time.Now()}
	if err := cat.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument: %v", err)
	}
	if err := cat.ApplyVerdicts(ctx, "run-1", []string{"doc-1"}, nil); err != nil {
		t.Fatalf("ApplyVerdicts: %v", err)
	}

	kept, err := cat.KeptDocuments(ctx, "run-1")
	if err != nil {
		t.Fatalf("KeptDocuments: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("KeptDocuments returned %d records, want 1", len(kept))
	}

	doc.Text = "revised"
	if err := cat.PutDocument(ctx, doc); err != nil {
		t.Fatalf("PutDocument replace: %v", err)
	}
	kept, err = cat.KeptDocuments(ctx, "run-1")
	if err != nil {
		t.Fatalf("KeptDocuments after replace: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("verdict survived re-import, got %d kept records", len(kept))
	}
}

func TestRunLifecycle(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	started := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	run := Run{
		ID: "run-1", NgramSize: 5, Bands: 16, RowsPerBand: 128,
		Threshold: 0.7, StartedAt: started,
	}
	if err := cat.StartRun(ctx, run); err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	got, err := cat.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunRunning {
		t.Errorf("Status = %s, want %s", got.Status, RunRunning)
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("FinishedAt = %v, want zero while running", got.FinishedAt)
	}

	run.TotalDocs = 100
	run.ExactDropped = 10
	run.NearDropped = 5
	run.Kept = 85
	run.Histogram = map[int]int{0: 80, 1: 15, 3: 5}
	run.FinishedAt = started.Add(42 * time.Second)
	if err := cat.CompleteRun(ctx, run); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	got, err = cat.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun after complete: %v", err)
	}
	if got.Status != RunCompleted {
		t.Errorf("Status = %s, want %s", got.Status, RunCompleted)
	}
	if got.Kept != 85 || got.ExactDropped != 10 || got.NearDropped != 5 {
		t.Errorf("counters = kept %d exact %d near %d, want 85/10/5",
			got.Kept, got.ExactDropped, got.NearDropped)
	}
	if got.Histogram[1] != 15 {
		t.Errorf("Histogram[1] = %d, want 15", got.Histogram[1])
	}
	if got.Duration() != 42*time.Second {
		t.Errorf("Duration = %v, want 42s", got.Duration())
	}

	latest, err := cat.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != "run-1" {
		t.Errorf("LatestRun = %s, want run-1", latest.ID)
	}
}

func TestFailRunAndLatestSkipsFailures(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	ok := Run{ID: "run-ok", NgramSize: 5, Bands: 16, RowsPerBand: 128, Threshold: 0.7, StartedAt: base}
	if err := cat.StartRun(ctx, ok); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	ok.FinishedAt = base.Add(time.Second)
	if err := cat.CompleteRun(ctx, ok); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	bad := Run{ID: "run-bad", NgramSize: 5, Bands: 16, RowsPerBand: 128, Threshold: 0.7, StartedAt: base.Add(time.Minute)}
	if err := cat.StartRun(ctx, bad); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := cat.FailRun(ctx, "run-bad", "snapshot interrupted"); err != nil {
		t.Fatalf("FailRun: %v", err)
	}

	got, err := cat.GetRun(ctx, "run-bad")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != RunFailed || got.Error != "snapshot interrupted" {
		t.Errorf("failed run = %s/%q, want FAILED/snapshot interrupted", got.Status, got.Error)
	}

	latest, err := cat.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != "run-ok" {
		t.Errorf("LatestRun = %s, want the completed run-ok", latest.ID)
	}

	runs, err := cat.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-bad" {
		t.Errorf("ListRuns order wrong: %+v", runs)
	}

	if _, err := cat.GetRun(ctx, "missing"); !errors.Is(err, apperrors.ErrRunNotFound) {
		t.Errorf("GetRun(missing) = %v, want ErrRunNotFound", err)
	}
}

func TestApplyVerdictsAndKeptDocuments(t *testing.T) {
	cat := openTestCatalog(t)
	ctx := context.Background()

	committed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c"} {
		doc := Document{ID: id, Text: "text " + id, ContentHash: "hash-" + id, CommittedAt: committed}
		if err := cat.PutDocument(ctx, doc); err != nil {
			t.Fatalf("PutDocument(%s): %v", id, err)
		}
	}

	if err := cat.ApplyVerdicts(ctx, "run-1", []string{"c", "a"}, []string{"b"}); err != nil {
		t.Fatalf("ApplyVerdicts: %v", err)
	}

	kept, err := cat.KeptDocuments(ctx, "run-1")
	if err != nil {
		t.Fatalf("KeptDocuments: %v", err)
	}
	if len(kept) != 2 {
		t.Fatalf("KeptDocuments returned %d records, want 2", len(kept))
	}
	if kept[0].ID != "a" || kept[1].ID != "c" {
		t.Errorf("kept order = [%s %s], want [a c]", kept[0].ID, kept[1].ID)
	}
	if kept[0].Text != "text a" || kept[0].ContentHash != "hash-a" {
		t.Errorf("kept record = %+v, want text/hash for a", kept[0])
	}
	if !kept[0].CommittedAt.Equal(committed) {
		t.Errorf("CommittedAt = %v, want %v", kept[0].CommittedAt, committed)
	}
}

func TestReadRecords(t *testing.T) {
	input := `
{"id":"d1","text":"first body","committed_at":"2024-01-02T15:04:05Z"}

{"text":"no id assigned yet"}
`
	records, err := ReadRecords(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadRecords: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ReadRecords returned %d records, want 2", len(records))
	}
	if records[0].ID != "d1" || records[0].Text != "first body" {
		t.Errorf("record 0 = %+v", records[0])
	}
	want := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	if !records[0].CommittedAt.Equal(want) {
		t.Errorf("CommittedAt = %v, want %v", records[0].CommittedAt, want)
	}
	if records[1].ID != "" {
		t.Errorf("record 1 id = %q, want empty", records[1].ID)
	}
}

func TestReadRecordsMalformedLine(t *testing.T) {
	input := `{"id":"d1","text":"ok"}
{not json}
`
	_, err := ReadRecords(strings.NewReader(input))
	if err == nil {
		t.Fatal("ReadRecords accepted malformed input")
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name the offending line", err)
	}
}
