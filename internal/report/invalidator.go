package report

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PaliC/popcorn-data-utils/internal/worker"
	"github.com/PaliC/popcorn-data-utils/pkg/kafka"
)

// InvalidationConsumer watches run-completed events and drops stale cache
// entries.
type InvalidationConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewInvalidationConsumer creates an InvalidationConsumer backed by the
// given Kafka consumer.
func NewInvalidationConsumer(kafkaConsumer *kafka.Consumer) *InvalidationConsumer {
	return &InvalidationConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "invalidation-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *InvalidationConsumer) Start(ctx context.Context) error {
	ic.logger.Info("invalidation consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleRunCompleted returns a Kafka MessageHandler that invalidates the
// report cache whenever a run reaches a terminal state. Undecodable events
// are logged and skipped; invalidation failures are returned so the event
// is redelivered.
func HandleRunCompleted(cache *RunCache) kafka.MessageHandler {
	logger := slog.Default().With("component", "invalidation-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[worker.RunCompleted](value)
		if err != nil {
			logger.Error("failed to decode run-completed event",
				"error", err,
				"key", string(key),
			)
			return nil
		}

		if err := cache.Invalidate(ctx); err != nil {
			return fmt.Errorf("invalidating cache after run %s: %w", event.RunID, err)
		}

		logger.Info("report cache invalidated",
			"run_id", event.RunID,
			"status", event.Status,
			"kept", event.Kept,
		)
		return nil
	}
}
