// Package relay drains the transactional outbox and publishes ledger
// events to Kafka. Events become visible to downstream consumers only
// after the mutation that produced them has committed.
package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/employee-loan-ledger/internal/domain/event"
	"github.com/employee-loan-ledger/internal/platform/messaging/producers"
)

// EventPublisher publishes a drained outbox record downstream
type EventPublisher interface {
	PublishRecord(ctx context.Context, rec *event.Record) error
}

// KafkaEventPublisher implements EventPublisher on top of the ledger
// event producer. A record is marked PROCESSED only after the broker
// has acknowledged the write.
type KafkaEventPublisher struct {
	outboxRepo event.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

func NewKafkaEventPublisher(
	outboxRepo event.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) EventPublisher {
	return &KafkaEventPublisher{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishRecord publishes one outbox record keyed by loan ID, so all
// events of a loan land on one partition in order.
func (p *KafkaEventPublisher) PublishRecord(ctx context.Context, rec *event.Record) error {
	logger := p.logger.With(
		"outbox_id", rec.RowID,
		"event_id", rec.Event.ID.String(),
		"event_type", string(rec.Event.Type),
	)

	if err := p.producer.Publish(ctx, rec.Event.LoanID.String(), rec.Event); err != nil {
		logger.Error("Failed to publish ledger event", "error", err)
		return fmt.Errorf("failed to publish event for outbox record %d: %w", rec.RowID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, rec.RowID, event.StatusProcessed); err != nil {
		logger.Error("Event published but failed to mark outbox record as PROCESSED", "error", err)
		return fmt.Errorf("event for outbox record %d published, but failed to mark PROCESSED: %w", rec.RowID, err)
	}

	logger.Info("Outbox record successfully published and marked as PROCESSED")
	return nil
}
