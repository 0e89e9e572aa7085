package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/vmbid/matching-engine/internal/metrics"
	"github.com/vmbid/matching-engine/internal/model"
)

// KafkaPublisher writes one message per fill, keyed by username so a user's
// fills land on a single partition in order.
//
// Writes are asynchronous: Publish only enqueues, and delivery failures are
// logged and counted when the writer reports them. Close flushes what is
// still pending.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates an asynchronous publisher for topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			MaxAttempts:  3,
			BatchTimeout: 10 * time.Millisecond,
			Completion:   reportDelivery,
		},
	}
}

func reportDelivery(msgs []kafka.Message, err error) {
	if err == nil {
		return
	}
	metrics.JournalErrors.WithLabelValues("kafka").Add(float64(len(msgs)))
	slog.Error("kafka delivery failed", "count", len(msgs), "err", err)
}

func (p *KafkaPublisher) Publish(ctx context.Context, fills []model.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	msgs, err := encodeFills(fills)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d fills: %w", len(fills), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func encodeFills(fills []model.Fill) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(fills))
	for _, f := range fills {
		value, err := json.Marshal(f)
		if err != nil {
			return nil, fmt.Errorf("encode fill %s: %w", f.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(f.Username),
			Value: value,
			Time:  f.Timestamp,
		})
	}
	return msgs, nil
}
