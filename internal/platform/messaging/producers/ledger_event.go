package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/employee-loan-ledger/internal/config"
)

// LedgerEventProducer publishes ledger mutation events drained from the
// outbox. Writes are synchronous with full acks: the relay only marks a
// record processed once the broker has accepted it.
type LedgerEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewLedgerEventProducer creates the event producer and ensures the
// topic exists.
func NewLedgerEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*LedgerEventProducer, error) {
	if cfg.EventTopic == "" {
		return nil, fmt.Errorf("kafka event topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for ledger event producer: %w", err)
	}
	defer conn.Close()

	err = createKafkaTopicIfNotExists(conn, cfg.EventTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure event topic %s exists for ledger event producer: %w", cfg.EventTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventTopic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write event messages", "topic", cfg.EventTopic, "error", err, "count", len(messages))
			} else {
				logger.Debug("Successfully wrote event messages", "topic", cfg.EventTopic, "count", len(messages))
			}
		},
	}

	return &LedgerEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventTopic,
	}, nil
}

// Publish sends one event keyed by loan ID so all events of a loan land
// on the same partition in order.
func (p *LedgerEventProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value for ledger event producer: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish message via ledger event producer",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to %s via ledger event producer: %w", p.topic, err)
	}

	p.logger.Debug("Published message via ledger event producer",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *LedgerEventProducer) Close() error {
	p.logger.Info("Closing ledger event Kafka producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close ledger event kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
