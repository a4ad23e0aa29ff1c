// Package catalog provides SQLite-backed persistence for the offline
// dedupctl workflow. It stores an imported document corpus, the runs executed
// against it, and the per-document verdicts those runs produced. Everything
// lives in a single database file so a corpus can be deduplicated on a
// laptop without any of the platform services.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PaliC/popcorn-data-utils/internal/dedup"
	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

// Run lifecycle states.
const (
	RunRunning   = "RUNNING"
	RunCompleted = "COMPLETED"
	RunFailed    = "FAILED"
)

// Verdicts assigned to documents by a completed run.
const (
	VerdictKept    = "KEPT"
	VerdictDropped = "DROPPED"
)

// Document is one catalog row: the raw text plus the bookkeeping columns
// maintained by the import and run commands.
type Document struct {
	ID          string
	Text        string
	ContentHash string
	CommittedAt time.Time
	Verdict     string
	RunID       string
}

// Run records one deduplication run over the catalog.
type Run struct {
	ID           string
	Status       string
	NgramSize    int
	Bands        int
	RowsPerBand  int
	Threshold    float64
	TotalDocs    int
	ExactDropped int
	NearDropped  int
	Kept         int
	Histogram    map[int]int
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Duration returns how long the run took, or how long it has been running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Catalog is the SQLite store behind the offline CLI.
type Catalog struct {
	db *sql.DB
}

// New opens (or creates) the catalog database at dbPath.
func New(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Initialize creates the database schema. Timestamps are stored as Unix
// nanoseconds so recency comparisons survive the round trip exactly.
func (c *Catalog) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		committed_at INTEGER NOT NULL,
		verdict TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		imported_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		ngram_size INTEGER NOT NULL,
		bands INTEGER NOT NULL,
		rows_per_band INTEGER NOT NULL,
		threshold REAL NOT NULL,
		total_docs INTEGER NOT NULL DEFAULT 0,
		exact_dropped INTEGER NOT NULL DEFAULT 0,
		near_dropped INTEGER NOT NULL DEFAULT 0,
		kept INTEGER NOT NULL DEFAULT 0,
		histogram JSON,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_documents_run_verdict ON documents(run_id, verdict);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// DB returns the underlying database connection for advanced queries.
func (c *Catalog) DB() *sql.DB {
	return c.db
}

// PutDocument inserts or replaces a document. Replacing a document clears
// any verdict carried over from earlier runs.
func (c *Catalog) PutDocument(ctx context.Context, doc Document) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (id, body, content_hash, committed_at, verdict, run_id)
		 VALUES (?, ?, ?, ?, '', '')
		 ON CONFLICT(id) DO UPDATE SET
		 	body = excluded.body,
		 	content_hash = excluded.content_hash,
		 	committed_at = excluded.committed_at,
		 	verdict = '',
		 	run_id = ''`,
		doc.ID, doc.Text, doc.ContentHash, doc.CommittedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("storing document %s: %w", doc.ID, err)
	}
	return nil
}

// CountDocuments returns the number of documents in the catalog.
func (c *Catalog) CountDocuments(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// Snapshot loads the whole catalog as pipeline input. Rows are ordered by id
// so repeated runs over the same corpus see the same input order.
func (c *Catalog) Snapshot(ctx context.Context) ([]dedup.Document, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, body, committed_at FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	defer rows.Close()

	var docs []dedup.Document
	for rows.Next() {
		var (
			id, body string
			nanos    int64
		)
		if err := rows.Scan(&id, &body, &nanos); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, dedup.Document{ID: id, Text: body, Recency: time.Unix(0, nanos)})
	}
	return docs, rows.Err()
}

// ApplyVerdicts stamps the given documents with their run verdicts inside a
// single transaction.
func (c *Catalog) ApplyVerdicts(ctx context.Context, runID string, kept, dropped []string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning verdict transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE documents SET verdict = ?, run_id = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("preparing verdict update: %w", err)
	}
	defer stmt.Close()

	for _, id := range kept {
		if _, err := stmt.ExecContext(ctx, VerdictKept, runID, id); err != nil {
			return fmt.Errorf("marking %s kept: %w", id, err)
		}
	}
	for _, id := range dropped {
		if _, err := stmt.ExecContext(ctx, VerdictDropped, runID, id); err != nil {
			return fmt.Errorf("marking %s dropped: %w", id, err)
		}
	}
	return tx.Commit()
}

// KeptDocuments returns the documents a run kept, as exportable records
// ordered by id.
func (c *Catalog) KeptDocuments(ctx context.Context, runID string) ([]Record, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, body, content_hash, committed_at FROM documents
		 WHERE run_id = ? AND verdict = ? ORDER BY id`,
		runID, VerdictKept,
	)
	if err != nil {
		return nil, fmt.Errorf("loading kept documents: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec   Record
			nanos int64
		)
		if err := rows.Scan(&rec.ID, &rec.Text, &rec.ContentHash, &nanos); err != nil {
			return nil, fmt.Errorf("scanning kept row: %w", err)
		}
		rec.CommittedAt = time.Unix(0, nanos).UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StartRun records a new run in the RUNNING state.
func (c *Catalog) StartRun(ctx context.Context, run Run) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, ngram_size, bands, rows_per_band, threshold, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, RunRunning, run.NgramSize, run.Bands, run.RowsPerBand,
		run.Threshold, run.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun finalises a successful run with its totals and histogram.
func (c *Catalog) CompleteRun(ctx context.Context, run Run) error {
	histogram, err := json.Marshal(run.Histogram)
	if err != nil {
		return fmt.Errorf("marshaling histogram: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`UPDATE runs
		 SET status = ?, total_docs = ?, exact_dropped = ?, near_dropped = ?,
		     kept = ?, histogram = ?, finished_at = ?
		 WHERE id = ?`,
		RunCompleted, run.TotalDocs, run.ExactDropped, run.NearDropped,
		run.Kept, string(histogram), run.FinishedAt.UnixNano(), run.ID,
	)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", run.ID, err)
	}
	return nil
}

// FailRun marks a run FAILED and records the failure reason.
func (c *Catalog) FailRun(ctx context.Context, runID, reason string) error {
	_, err := c.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		RunFailed, reason, time.Now().UTC().UnixNano(), runID,
	)
	if err != nil {
		return fmt.Errorf("failing run %s: %w", runID, err)
	}
	return nil
}

const runColumns = `id, status, ngram_size, bands, rows_per_band, threshold,
	total_docs, exact_dropped, near_dropped, kept,
	COALESCE(histogram, ''), error, started_at, finished_at`

// GetRun loads one run by ID. A missing run yields ErrRunNotFound.
func (c *Catalog) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return run, nil
}

// LatestRun returns the most recent completed run, or ErrRunNotFound when
// nothing has completed yet.
func (c *Catalog) LatestRun(ctx context.Context) (*Run, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		RunCompleted)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (c *Catalog) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(scan func(dest ...any) error) (*Run, error) {
	var run Run
	var histogram string
	var startedAt, finishedAt int64
	err := scan(&run.ID, &run.Status, &run.NgramSize, &run.Bands, &run.RowsPerBand,
		&run.Threshold, &run.TotalDocs, &run.ExactDropped, &run.NearDropped,
		&run.Kept, &histogram, &run.Error, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if histogram != "" && histogram != "null" {
		if err := json.Unmarshal([]byte(histogram), &run.Histogram); err != nil {
			return nil, fmt.Errorf("unmarshaling histogram: %w", err)
		}
	}
	run.StartedAt = time.Unix(0, startedAt).UTC()
	// A zero column stands for "not finished yet".
	if finishedAt != 0 {
		run.FinishedAt = time.Unix(0, finishedAt).UTC()
	}
	return &run, nil
}
