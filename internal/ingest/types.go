// Package ingest defines the request/response types and Kafka event schema
// used by the document intake pipeline.
package ingest

import "time"

// IngestRequest is the JSON body accepted by the intake HTTP endpoint.
// CommittedAt is the document's recency timestamp; when omitted it defaults
// to the time of intake. SourceKey is an optional idempotency key chosen by
// the caller.
type IngestRequest struct {
	Text        string    `json:"text"`
	CommittedAt time.Time `json:"committed_at"`
	SourceKey   string    `json:"source_key"`
}

// IngestResponse is returned to the caller after a document is accepted.
type IngestResponse struct {
	DocumentID  string `json:"document_id"`
	Status      string `json:"status"`
	ContentHash string `json:"content_hash"`
}

// DocumentStaged is the Kafka message payload produced after a document is
// persisted and ready for the next dedup run. The body stays in PostgreSQL;
// the event carries only identity and sizing metadata.
type DocumentStaged struct {
	DocumentID  string    `json:"document_id"`
	ContentHash string    `json:"content_hash"`
	ContentSize int64     `json:"content_size"`
	CommittedAt time.Time `json:"committed_at"`
	StagedAt    time.Time `json:"staged_at"`
}
