package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/employee-loan-ledger/internal/config"
)

// DLQProducer parks outbox records that exhausted their publish
// retries on a dead letter topic so they can be inspected and replayed
// by hand. A nil *DLQProducer is a valid disabled producer.
type DLQProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// deadLetter is the envelope written to the dead letter topic. The
// original event payload is kept verbatim so a replay tool can feed it
// back to the event topic unchanged.
type deadLetter struct {
	LoanKey  string          `json:"loan_key"`
	Event    json.RawMessage `json:"event"`
	Reason   string          `json:"reason"`
	ParkedAt time.Time       `json:"parked_at"`
}

// NewDLQProducer creates the dead letter producer and ensures its
// topic exists. Returns (nil, nil) when no DLQ topic is configured.
func NewDLQProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("No DLQ topic configured, exhausted outbox records will be dropped")
		return nil, nil
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for DLQ producer: %w", err)
	}
	defer conn.Close()

	if err := createKafkaTopicIfNotExists(conn, cfg.DLQTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure DLQ topic %s exists: %w", cfg.DLQTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &DLQProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.DLQTopic,
	}, nil
}

// PublishToDLQ writes the dead letter envelope keyed like the original
// message, so parked events of one loan land on one partition. A
// disabled producer reports an error rather than pretending the event
// was parked.
func (p *DLQProducer) PublishToDLQ(ctx context.Context, key string, eventPayload []byte, reason string) error {
	if p == nil || p.writer == nil {
		return fmt.Errorf("DLQ producer is not initialized")
	}

	value, err := json.Marshal(deadLetter{
		LoanKey:  key,
		Event:    eventPayload,
		Reason:   reason,
		ParkedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "dlq-reason", Value: []byte(reason)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to park event on dead letter topic",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to DLQ %s: %w", p.topic, err)
	}

	p.logger.Info("Parked event on dead letter topic",
		"topic", p.topic,
		"key", key,
		"reason", reason,
	)
	return nil
}

// Close flushes and closes the writer. Nil-safe for the disabled case.
func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	p.logger.Info("Closing DLQ producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close DLQ writer for topic %s: %w", p.topic, err)
	}
	return nil
}
