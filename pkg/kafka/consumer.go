// Package kafka carries the platform's two event streams over
// segmentio/kafka-go: staging events from intake to the dedup worker, and
// run completions from the worker to the report service. Events are JSON;
// offsets commit only after the handler succeeds, so a crashed consumer
// replays rather than drops.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/PaliC/popcorn-data-utils/pkg/config"
)

// MessageHandler processes one message. Returning an error leaves the
// offset uncommitted; the message is retried on the next fetch cycle.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer feeds one topic's messages through a MessageHandler as part of
// the configured consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	log     *slog.Logger
}

// NewConsumer builds a Consumer for the topic.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    1e3,
			MaxBytes:    10e6,
			StartOffset: kafka.LastOffset,
		}),
		handler: handler,
		log:     slog.Default().With("component", "kafka-consumer", "topic", topic),
	}
}

// Start fetches, handles, and commits messages until ctx is cancelled. A
// failing handler or commit is logged and the loop moves on; the consumer
// itself only stops with its context.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.log.Error("fetch failed", "error", err)
			continue
		}
		if err := c.handle(ctx, msg); err != nil {
			c.log.Error("message not processed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	c.log.Debug("message received",
		"partition", msg.Partition,
		"offset", msg.Offset,
		"key", string(msg.Key),
	)
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		return fmt.Errorf("handling message: %w", err)
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return fmt.Errorf("committing offset: %w", err)
	}
	return nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
