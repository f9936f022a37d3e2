package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/employee-loan-ledger/internal/domain/event"
	"github.com/employee-loan-ledger/internal/platform/persistence"
)

// OutboxRepository implements the event.Repository interface for PostgreSQL
type OutboxRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewOutboxRepository creates a new PostgreSQL outbox repository
func NewOutboxRepository(logger *slog.Logger, db *persistence.PostgresDB) event.Repository {
	return &OutboxRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so that event capture
// is atomic with the ledger mutation that produced the event.
func (r *OutboxRepository) WithTx(tx pgx.Tx) event.Repository {
	return &OutboxRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new ledger event in pending status. The record is
// picked up by the outbox relay for publishing.
func (r *OutboxRepository) Create(ctx context.Context, evt *event.Event) error {
	query := `
		INSERT INTO ledger_outbox (event_id, event_type, loan_id, employee_id, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		evt.ID,
		evt.Type,
		evt.LoanID,
		evt.EmployeeID,
		evt.Payload,
		event.StatusPending,
		0,
		evt.OccurredAt,
	)
	if err != nil {
		r.logger.Error("Failed to create outbox record",
			"event_id", evt.ID.String(),
			"event_type", string(evt.Type),
			"error", err,
		)
		return fmt.Errorf("failed to create outbox record: %w", err)
	}

	return nil
}

// GetPending retrieves a batch of pending outbox records ordered by
// creation time. The relay drains records in FIFO order.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*event.Record, error) {
	query := `
		SELECT id, event_id, event_type, loan_id, employee_id, payload, status, attempts, created_at, last_attempt_at
		FROM ledger_outbox
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, event.StatusPending, limit)
	if err != nil {
		r.logger.Error("Failed to get pending outbox records", "error", err)
		return nil, fmt.Errorf("failed to get pending outbox records: %w", err)
	}
	defer rows.Close()

	var records []*event.Record
	for rows.Next() {
		var rec event.Record
		err := rows.Scan(
			&rec.RowID,
			&rec.Event.ID,
			&rec.Event.Type,
			&rec.Event.LoanID,
			&rec.Event.EmployeeID,
			&rec.Event.Payload,
			&rec.Status,
			&rec.Attempts,
			&rec.CreatedAt,
			&rec.LastAttemptAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan outbox record", "error", err)
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		rec.Event.OccurredAt = rec.CreatedAt
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over outbox records", "error", err)
		return nil, fmt.Errorf("error iterating over outbox records: %w", err)
	}

	return records, nil
}

// UpdateStatus updates the record status and last attempt timestamp.
// Returns ErrRecordNotFound if the record doesn't exist.
func (r *OutboxRepository) UpdateStatus(ctx context.Context, rowID int64, status event.Status) error {
	query := `
		UPDATE ledger_outbox
		SET status = $1, last_attempt_at = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, status, time.Now(), rowID)
	if err != nil {
		r.logger.Error("Failed to update outbox record status",
			"id", rowID,
			"status", string(status),
			"error", err,
		)
		return fmt.Errorf("failed to update outbox record status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return event.ErrRecordNotFound{RowID: rowID}
	}

	return nil
}

// IncrementAttempts increments the retry counter and updates last attempt time.
func (r *OutboxRepository) IncrementAttempts(ctx context.Context, rowID int64) error {
	query := `
		UPDATE ledger_outbox
		SET attempts = attempts + 1, last_attempt_at = $1
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, time.Now(), rowID)
	if err != nil {
		r.logger.Error("Failed to increment outbox record attempts",
			"id", rowID,
			"error", err,
		)
		return fmt.Errorf("failed to increment outbox record attempts: %w", err)
	}

	if result.RowsAffected() == 0 {
		return event.ErrRecordNotFound{RowID: rowID}
	}

	return nil
}
