package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PaliC/popcorn-data-utils/internal/corpus"
	"github.com/PaliC/popcorn-data-utils/internal/ingest"
	"github.com/PaliC/popcorn-data-utils/pkg/kafka"
)

// StagingConsumer wraps a Kafka consumer that tracks intake events.
type StagingConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewStagingConsumer creates a StagingConsumer backed by the given Kafka
// consumer.
func NewStagingConsumer(kafkaConsumer *kafka.Consumer) *StagingConsumer {
	return &StagingConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "staging-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (sc *StagingConsumer) Start(ctx context.Context) error {
	sc.logger.Info("staging consumer starting")
	return sc.consumer.Start(ctx)
}

// HandleStagedDocument returns a Kafka MessageHandler that marks each
// announced document STAGED in the corpus. Undecodable messages are logged
// and skipped; store failures are returned so the message is redelivered.
func HandleStagedDocument(store *corpus.Store) kafka.MessageHandler {
	logger := slog.Default().With("component", "staging-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingest.DocumentStaged](value)
		if err != nil {
			logger.Error("failed to decode staging event",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		if err := store.MarkStaged(ctx, event.DocumentID); err != nil {
			return fmt.Errorf("staging document %s: %w", event.DocumentID, err)
		}

		logger.Debug("document staged",
			"doc_id", event.DocumentID,
			"content_size", event.ContentSize,
		)
		return nil
	}
}
