package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/PaliC/popcorn-data-utils/pkg/config"
)

// Event is one message to publish. Key picks the partition (document or run
// ID, so per-entity ordering holds) and Value is marshalled to JSON.
type Event struct {
	Key   string
	Value any
}

// Producer writes JSON events to one topic. Writes are synchronous and
// acknowledged by all replicas; a staging event that Kafka did not accept
// must fail the intake request rather than vanish.
type Producer struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewProducer builds a Producer for the topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		log: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("publish failed", "key", event.Key, "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.log.Debug("published", "key", event.Key, "bytes", len(msg.Value))
	return nil
}

// PublishBatch writes several events in one call.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, len(events))
	for i, event := range events {
		msg, err := encode(event)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.log.Error("batch publish failed", "count", len(msgs), "error", err)
		return fmt.Errorf("publishing batch to kafka: %w", err)
	}
	p.log.Debug("batch published", "count", len(msgs))
	return nil
}

// Close flushes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func encode(event Event) (kafka.Message, error) {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshalling event %s: %w", event.Key, err)
	}
	return kafka.Message{Key: []byte(event.Key), Value: value}, nil
}
