package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/employee-loan-ledger/internal/config"
	"github.com/employee-loan-ledger/internal/domain/event"
	"github.com/employee-loan-ledger/internal/platform/messaging/producers"
)

// Poller drains pending outbox records on a fixed interval. Records are
// grouped by loan and each group is handed to the worker pool as one
// task, so loans publish in parallel while events of a single loan stay
// in order.
type Poller struct {
	outboxRepo       event.Repository
	publisher        EventPublisher
	dlq              producers.DeadLetterPublisher
	pool             *ants.Pool
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo event.Repository,
	publisher EventPublisher,
	dlq producers.DeadLetterPublisher,
	logger *slog.Logger,
) (*Poller, error) {
	pool, err := ants.NewPool(cfg.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay worker pool: %w", err)
	}

	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		dlq:              dlq,
		pool:             pool,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}, nil
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting outbox relay",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
		"worker_pool_size", p.pool.Cap(),
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox relay stopping due to context cancellation.")
			return
		case <-ticker.C:
			p.logger.Debug("Outbox relay tick: processing pending records")
			if err := p.processPendingRecords(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox records", "error", err)
			}
		}
	}
}

// Shutdown releases the worker pool.
func (p *Poller) Shutdown() {
	p.logger.Info("Shutting down relay worker pool", "running_workers", p.pool.Running())
	p.pool.Release()
}

func (p *Poller) processPendingRecords(ctx context.Context) error {
	records, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox records: %w", err)
	}

	if len(records) == 0 {
		p.logger.Debug("No pending outbox records found.")
		return nil
	}

	p.logger.Info("Fetched pending outbox records", "count", len(records))

	// GetPending returns records oldest first; grouping keeps that
	// order within each loan.
	groups := make(map[uuid.UUID][]*event.Record)
	var order []uuid.UUID
	for _, rec := range records {
		if _, seen := groups[rec.Event.LoanID]; !seen {
			order = append(order, rec.Event.LoanID)
		}
		groups[rec.Event.LoanID] = append(groups[rec.Event.LoanID], rec)
	}

	var wg sync.WaitGroup
	for _, loanID := range order {
		group := groups[loanID]
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			for _, rec := range group {
				p.handleRecord(ctx, rec)
			}
		})
		if err != nil {
			wg.Done()
			p.logger.Error("Failed to submit outbox group to worker pool",
				"loan_id", loanID.String(), "error", err,
			)
		}
	}
	wg.Wait()

	return nil
}

func (p *Poller) handleRecord(ctx context.Context, rec *event.Record) {
	logger := p.logger.With("outbox_id", rec.RowID, "event_id", rec.Event.ID.String())

	err := p.publisher.PublishRecord(ctx, rec)
	if err == nil {
		return
	}

	logger.Error("Failed to publish outbox record", "current_attempts", rec.Attempts, "error", err)

	if errInc := p.outboxRepo.IncrementAttempts(ctx, rec.RowID); errInc != nil {
		logger.Error("Failed to increment attempts for outbox record", "error", errInc)
		return
	}

	if rec.Attempts+1 >= p.maxRetryAttempts {
		logger.Warn("Max retry attempts reached for outbox record, marking as FAILED_TO_PUBLISH",
			"attempts_made", rec.Attempts+1,
		)
		if errUpdate := p.outboxRepo.UpdateStatus(ctx, rec.RowID, event.StatusFailed); errUpdate != nil {
			logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH after max retries", "error", errUpdate)
			return
		}
		p.parkInDLQ(ctx, rec, err, logger)
	}
}

// parkInDLQ sends the exhausted record to the dead letter topic so it
// can be inspected and replayed. DLQ may be disabled.
func (p *Poller) parkInDLQ(ctx context.Context, rec *event.Record, cause error, logger *slog.Logger) {
	if p.dlq == nil {
		logger.Warn("DLQ disabled, dropping exhausted outbox record")
		return
	}

	payload, err := json.Marshal(rec.Event)
	if err != nil {
		logger.Error("Failed to marshal event for DLQ", "error", err)
		return
	}

	if err := p.dlq.PublishToDLQ(ctx, rec.Event.LoanID.String(), payload, cause.Error()); err != nil {
		logger.Error("Failed to publish exhausted outbox record to DLQ", "error", err)
	}
}
