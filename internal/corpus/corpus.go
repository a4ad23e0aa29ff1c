// Package corpus persists documents, dedup runs, and API keys in PostgreSQL.
// It is the shared storage layer for the ingestion, worker, and report
// services.
package corpus

import "time"

// Document lifecycle states. A document enters as RECEIVED, becomes STAGED
// once the worker has seen its staging event, and ends up KEPT or DROPPED
// after each dedup run.
const (
	StatusReceived = "RECEIVED"
	StatusStaged   = "STAGED"
	StatusKept     = "KEPT"
	StatusDropped  = "DROPPED"
)

// Run lifecycle states.
const (
	RunRunning   = "RUNNING"
	RunCompleted = "COMPLETED"
	RunFailed    = "FAILED"
)

// DocumentRow is one corpus document as stored.
type DocumentRow struct {
	ID          string    `json:"id"`
	SourceKey   string    `json:"source_key,omitempty"`
	Body        string    `json:"-"`
	ContentHash string    `json:"content_hash"`
	ContentSize int64     `json:"content_size"`
	CommittedAt time.Time `json:"committed_at"`
	Status      string    `json:"status"`
	RunID       string    `json:"run_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// KeptDocument is the body-free projection of a corpus row served by the
// report API.
type KeptDocument struct {
	ID          string    `json:"id"`
	ContentHash string    `json:"content_hash"`
	ContentSize int64     `json:"content_size"`
	CommittedAt time.Time `json:"committed_at"`
}

// Run is one dedup run row. Histogram maps candidate-set size to the number
// of documents with that many candidates. FinishedAt is zero while the run
// is still in progress.
type Run struct {
	ID           string      `json:"run_id"`
	Status       string      `json:"status"`
	NgramSize    int         `json:"ngram_size"`
	Bands        int         `json:"bands"`
	RowsPerBand  int         `json:"rows_per_band"`
	Threshold    float64     `json:"threshold"`
	TotalDocs    int         `json:"total_docs"`
	ExactDropped int         `json:"exact_dropped"`
	NearDropped  int         `json:"near_dropped"`
	Kept         int         `json:"kept"`
	Histogram    map[int]int `json:"histogram,omitempty"`
	Error        string      `json:"error,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   time.Time   `json:"finished_at"`
}

// Duration returns how long the run took, or how long it has been running.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// APIKey is one ingestion credential. The secret itself is never stored,
// only its SHA-256 hash.
type APIKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	RevokedAt time.Time `json:"revoked_at"`
}

// Revoked reports whether the key has been revoked.
func (k APIKey) Revoked() bool {
	return !k.RevokedAt.IsZero()
}
