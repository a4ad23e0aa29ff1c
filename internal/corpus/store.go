package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/PaliC/popcorn-data-utils/internal/dedup"
	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
	"github.com/PaliC/popcorn-data-utils/pkg/postgres"
)

// Store provides corpus persistence over PostgreSQL. One Store is safe for
// concurrent use by multiple goroutines.
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

// NewStore creates a corpus store backed by the given client.
func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "corpus-store"),
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id           UUID PRIMARY KEY,
    source_key   TEXT UNIQUE,
    body         TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    content_size BIGINT NOT NULL,
    committed_at TIMESTAMPTZ NOT NULL,
    status       TEXT NOT NULL DEFAULT 'RECEIVED',
    run_id       UUID,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status);
CREATE INDEX IF NOT EXISTS documents_run_id_idx ON documents (run_id);

CREATE TABLE IF NOT EXISTS dedup_runs (
    id            UUID PRIMARY KEY,
    status        TEXT NOT NULL,
    ngram_size    INT NOT NULL,
    bands         INT NOT NULL,
    rows_per_band INT NOT NULL,
    threshold     DOUBLE PRECISION NOT NULL,
    total_docs    INT NOT NULL DEFAULT 0,
    exact_dropped INT NOT NULL DEFAULT 0,
    near_dropped  INT NOT NULL DEFAULT 0,
    kept          INT NOT NULL DEFAULT 0,
    histogram     JSONB,
    error         TEXT,
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS dedup_runs_started_idx ON dedup_runs (started_at DESC);

CREATE TABLE IF NOT EXISTS api_keys (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    key_hash   TEXT NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    revoked_at TIMESTAMPTZ
);
`

// EnsureSchema creates the corpus tables if they do not exist yet. Services
// call this once at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating corpus schema: %w", err)
	}
	return nil
}

// CreateDocument inserts a new corpus row with status RECEIVED. A reused
// source key yields ErrIdempotencyConflict, a reused ID ErrDocumentExists.
func (s *Store) CreateDocument(ctx context.Context, doc DocumentRow) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO documents (id, source_key, body, content_hash, content_size, committed_at, status)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)`,
		doc.ID, doc.SourceKey, doc.Body, doc.ContentHash, doc.ContentSize, doc.CommittedAt, StatusReceived,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			if pqErr.Constraint == "documents_source_key_key" {
				return apperrors.ErrIdempotencyConflict
			}
			return apperrors.ErrDocumentExists
		}
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

// FindBySourceKey loads the document previously accepted under the given
// source key, for idempotent replays of the intake endpoint.
func (s *Store) FindBySourceKey(ctx context.Context, sourceKey string) (*DocumentRow, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT id, COALESCE(source_key, ''), content_hash, content_size, committed_at, status, COALESCE(run_id::text, ''), created_at
		 FROM documents WHERE source_key = $1`,
		sourceKey,
	)
	return scanDocument(row)
}

// GetDocument loads one corpus row by ID, without its body.
func (s *Store) GetDocument(ctx context.Context, id string) (*DocumentRow, error) {
	row := s.db.DB.QueryRowContext(ctx,
		`SELECT id, COALESCE(source_key, ''), content_hash, content_size, committed_at, status, COALESCE(run_id::text, ''), created_at
		 FROM documents WHERE id = $1`,
		id,
	)
	return scanDocument(row)
}

func scanDocument(row *sql.Row) (*DocumentRow, error) {
	var doc DocumentRow
	err := row.Scan(&doc.ID, &doc.SourceKey, &doc.ContentHash, &doc.ContentSize,
		&doc.CommittedAt, &doc.Status, &doc.RunID, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document row: %w", err)
	}
	return &doc, nil
}

// MarkStaged flips a RECEIVED document to STAGED. Staging events can be
// redelivered, so an already-staged document is not an error.
func (s *Store) MarkStaged(ctx context.Context, id string) error {
	res, err := s.db.DB.ExecContext(ctx,
		`UPDATE documents SET status = $1 WHERE id = $2 AND status = $3`,
		StatusStaged, id, StatusReceived,
	)
	if err != nil {
		return fmt.Errorf("staging document %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Debug("staging skipped", "doc_id", id)
	}
	return nil
}

// Snapshot loads up to limit documents as dedup inputs, oldest first. Every
// document in the corpus participates in a run regardless of its current
// verdict, so repeated runs over an unchanged corpus are reproducible.
func (s *Store) Snapshot(ctx context.Context, limit int) ([]dedup.Document, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, body, committed_at FROM documents ORDER BY created_at ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading corpus snapshot: %w", err)
	}
	defer rows.Close()

	var docs []dedup.Document
	for rows.Next() {
		var doc dedup.Document
		if err := rows.Scan(&doc.ID, &doc.Text, &doc.Recency); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ApplyVerdicts records the outcome of a run on every participating
// document, in one transaction.
func (s *Store) ApplyVerdicts(ctx context.Context, runID string, kept, dropped []string) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET status = $1, run_id = $2 WHERE id = ANY($3)`,
			StatusKept, runID, pq.Array(kept),
		); err != nil {
			return fmt.Errorf("marking kept documents: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE documents SET status = $1, run_id = $2 WHERE id = ANY($3)`,
			StatusDropped, runID, pq.Array(dropped),
		); err != nil {
			return fmt.Errorf("marking dropped documents: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("verdicts applied",
		"run_id", runID,
		"kept", len(kept),
		"dropped", len(dropped),
	)
	return nil
}

// ListKept returns the kept documents of a run, sorted by ID.
func (s *Store) ListKept(ctx context.Context, runID string, limit int) ([]KeptDocument, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, content_hash, content_size, committed_at
		 FROM documents WHERE run_id = $1 AND status = $2
		 ORDER BY id ASC LIMIT $3`,
		runID, StatusKept, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing kept documents for run %s: %w", runID, err)
	}
	defer rows.Close()

	var kept []KeptDocument
	for rows.Next() {
		var doc KeptDocument
		if err := rows.Scan(&doc.ID, &doc.ContentHash, &doc.ContentSize, &doc.CommittedAt); err != nil {
			return nil, fmt.Errorf("scanning kept document: %w", err)
		}
		kept = append(kept, doc)
	}
	return kept, rows.Err()
}

// StatusCounts returns how many documents sit in each lifecycle state.
func (s *Store) StatusCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM documents GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("counting documents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// touchTimeout bounds the health-check ping.
const touchTimeout = 2 * time.Second

// Ping verifies database connectivity, for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, touchTimeout)
	defer cancel()
	return s.db.DB.PingContext(ctx)
}
