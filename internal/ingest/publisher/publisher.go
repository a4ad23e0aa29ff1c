// Package publisher persists accepted documents to the corpus store and
// publishes staging events to Kafka for the dedup worker. Writes are
// idempotent on the caller-supplied source key.
package publisher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/internal/ingest"
	apperrors "github.com/PaliC/popcorn-data-utils/pkg/errors"
	"github.com/PaliC/popcorn-data-utils/pkg/kafka"
)

// Publisher coordinates document persistence and Kafka event production.
type Publisher struct {
	store    *corpus.Store
	producer *kafka.Producer
	logger   *slog.Logger
}

// New creates a Publisher with the given store and Kafka producer.
func New(store *corpus.Store, producer *kafka.Producer) *Publisher {
	return &Publisher{
		store:    store,
		producer: producer,
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

// Accept persists the document with status RECEIVED and publishes a
// DocumentStaged event. A replayed source key returns the original
// document's response without re-insertion.
func (p *Publisher) Accept(ctx context.Context, req *ingest.IngestRequest) (*ingest.IngestResponse, error) {
	committedAt := req.CommittedAt
	if committedAt.IsZero() {
		committedAt = time.Now().UTC()
	}

	row := corpus.DocumentRow{
		ID:          uuid.NewString(),
		SourceKey:   req.SourceKey,
		Body:        req.Text,
		ContentHash: fmt.Sprintf("%x", sha256.Sum256([]byte(req.Text))),
		ContentSize: int64(len(req.Text)),
		CommittedAt: committedAt,
	}

	err := p.store.CreateDocument(ctx, row)
	if errors.Is(err, apperrors.ErrIdempotencyConflict) {
		existing, findErr := p.store.FindBySourceKey(ctx, req.SourceKey)
		if findErr != nil {
			return nil, fmt.Errorf("resolving replayed source key: %w", findErr)
		}
		p.logger.Info("duplicate intake detected",
			"source_key", req.SourceKey,
			"existing_id", existing.ID,
		)
		return &ingest.IngestResponse{
			DocumentID:  existing.ID,
			Status:      existing.Status,
			ContentHash: existing.ContentHash,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("persisting document: %w", err)
	}

	event := kafka.Event{
		Key: row.ID,
		Value: ingest.DocumentStaged{
			DocumentID:  row.ID,
			ContentHash: row.ContentHash,
			ContentSize: row.ContentSize,
			CommittedAt: committedAt,
			StagedAt:    time.Now().UTC(),
		},
	}
	if err := p.producer.Publish(ctx, event); err != nil {
		// The document is safe in PostgreSQL; the next full run picks it up
		// even if this staging event never lands.
		p.logger.Error("failed to publish staging event, document stuck in RECEIVED",
			"doc_id", row.ID,
			"error", err,
		)
	}

	return &ingest.IngestResponse{
		DocumentID:  row.ID,
		Status:      corpus.StatusReceived,
		ContentHash: row.ContentHash,
	}, nil
}
