// Package wire defines the shared message types used for internal RPC
// communication between the dedup worker and its control clients.
//
// The types use JSON struct tags for serialization over the platform's
// lightweight JSON-over-TCP RPC layer (see pkg/rpc).
package wire

// ---------- Common ----------

// HealthCheckResponse mirrors the gRPC health check spec.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}

// ---------- Run control ----------

// TriggerRunRequest starts a deduplication run. Zero-valued fields fall
// back to the worker's configured defaults.
type TriggerRunRequest struct {
	NgramSize   int32   `json:"ngram_size,omitempty"`
	Bands       int32   `json:"bands,omitempty"`
	RowsPerBand int32   `json:"rows_per_band,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// TriggerRunResponse acknowledges a started run.
type TriggerRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// RunStatusRequest fetches a single run by ID.
type RunStatusRequest struct {
	RunID string `json:"run_id"`
}

// RunSummary describes one deduplication run.
type RunSummary struct {
	RunID        string  `json:"run_id"`
	Status       string  `json:"status"`
	NgramSize    int32   `json:"ngram_size"`
	Bands        int32   `json:"bands"`
	RowsPerBand  int32   `json:"rows_per_band"`
	Threshold    float64 `json:"threshold"`
	TotalDocs    int64   `json:"total_docs"`
	ExactDropped int64   `json:"exact_dropped"`
	NearDropped  int64   `json:"near_dropped"`
	Kept         int64   `json:"kept"`
	StartedAt    int64   `json:"started_at"`
	FinishedAt   int64   `json:"finished_at,omitempty"`
	DurationMs   int64   `json:"duration_ms"`
}

// ListRunsRequest lists recent runs, newest first (0 = default limit).
type ListRunsRequest struct {
	Limit int32 `json:"limit"`
}

// ListRunsResponse is the output of the ListRuns RPC.
type ListRunsResponse struct {
	Runs []RunSummary `json:"runs"`
}
