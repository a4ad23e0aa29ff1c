// Package worker runs deduplication over corpus snapshots. It consumes
// staging events, executes runs through the dedup pipeline, persists
// verdicts, and announces finished runs on Kafka. Run control is exposed
// over the internal RPC surface.
package worker

import "time"

// RunCompleted is the Kafka message payload produced when a dedup run
// reaches a terminal state. The report service invalidates its caches on
// this event.
type RunCompleted struct {
	RunID        string    `json:"run_id"`
	Status       string    `json:"status"`
	TotalDocs    int       `json:"total_docs"`
	ExactDropped int       `json:"exact_dropped"`
	NearDropped  int       `json:"near_dropped"`
	Kept         int       `json:"kept"`
	DurationMs   int64     `json:"duration_ms"`
	FinishedAt   time.Time `json:"finished_at"`
}
