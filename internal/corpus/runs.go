package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
)

// CreateRun inserts a new run row with status RUNNING.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO dedup_runs (id, status, ngram_size, bands, rows_per_band, threshold, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, RunRunning, run.NgramSize, run.Bands, run.RowsPerBand, run.Threshold, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// CompleteRun finalises a successful run with its totals and histogram.
func (s *Store) CompleteRun(ctx context.Context, run Run) error {
	histogram, err := json.Marshal(run.Histogram)
	if err != nil {
		return fmt.Errorf("marshaling histogram: %w", err)
	}

	_, err = s.db.DB.ExecContext(ctx,
		`UPDATE dedup_runs
		 SET status = $2, total_docs = $3, exact_dropped = $4, near_dropped = $5,
		     kept = $6, histogram = $7, finished_at = $8
		 WHERE id = $1`,
		run.ID, RunCompleted, run.TotalDocs, run.ExactDropped, run.NearDropped,
		run.Kept, histogram, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("completing run %s: %w", run.ID, err)
	}
	return nil
}

// FailRun marks a run FAILED and records the failure reason.
func (s *Store) FailRun(ctx context.Context, runID, reason string) error {
	_, err := s.db.DB.ExecContext(ctx,
		`UPDATE dedup_runs SET status = $2, error = $3, finished_at = $4 WHERE id = $1`,
		runID, RunFailed, reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failing run %s: %w", runID, err)
	}
	return nil
}

const runColumns = `id, status, ngram_size, bands, rows_per_band, threshold,
	total_docs, exact_dropped, near_dropped, kept,
	COALESCE(histogram, 'null'::jsonb), COALESCE(error, ''),
	started_at, COALESCE(finished_at, 'epoch'::timestamptz)`

// GetRun loads one run by ID. A missing run yields ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM dedup_runs WHERE id = $1`,
		runID,
	)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT `+runColumns+` FROM dedup_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
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
	var histogram []byte
	var finishedAt time.Time
	err := scan(&run.ID, &run.Status, &run.NgramSize, &run.Bands, &run.RowsPerBand,
		&run.Threshold, &run.TotalDocs, &run.ExactDropped, &run.NearDropped,
		&run.Kept, &histogram, &run.Error, &run.StartedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	if len(histogram) > 0 {
		if err := json.Unmarshal(histogram, &run.Histogram); err != nil {
			return nil, fmt.Errorf("unmarshaling histogram: %w", err)
		}
	}
	// The epoch placeholder stands for "not finished yet".
	if finishedAt.Unix() != 0 {
		run.FinishedAt = finishedAt
	}
	return &run, nil
}
