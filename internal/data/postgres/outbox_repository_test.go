package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/employee-loan-ledger/internal/domain/event"
)

func TestOutboxRepository_Create(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: logger}

	evt := &event.Event{
		ID:         uuid.New(),
		Type:       event.TypeLoanIssued,
		LoanID:     uuid.New(),
		EmployeeID: 42,
		Payload:    json.RawMessage(`{"principal":"1500.00"}`),
		OccurredAt: time.Now(),
	}

	query := `
		INSERT INTO ledger_outbox \(event_id, event_type, loan_id, employee_id, payload, status, attempts, created_at\)
		VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(evt.ID, evt.Type, evt.LoanID, evt.EmployeeID, evt.Payload, event.StatusPending, 0, evt.OccurredAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		err := repo.Create(ctx, evt)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(query).
			WithArgs(evt.ID, evt.Type, evt.LoanID, evt.EmployeeID, evt.Payload, event.StatusPending, 0, evt.OccurredAt).
			WillReturnError(expectedErr)

		err := repo.Create(ctx, evt)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create outbox record")
		assert.ErrorIs(t, err, expectedErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: logger}
	now := time.Now()

	query := `
		SELECT id, event_id, event_type, loan_id, employee_id, payload, status, attempts, created_at, last_attempt_at
		FROM ledger_outbox
		WHERE status = \$1
		ORDER BY created_at ASC
		LIMIT \$2
	`
	columns := []string{"id", "event_id", "event_type", "loan_id", "employee_id", "payload", "status", "attempts", "created_at", "last_attempt_at"}

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(columns).
			AddRow(int64(1), uuid.New(), event.TypeLoanIssued, uuid.New(), int64(42), json.RawMessage(`{}`), event.StatusPending, 0, now, (*time.Time)(nil)).
			AddRow(int64(2), uuid.New(), event.TypeRepaymentRecorded, uuid.New(), int64(42), json.RawMessage(`{}`), event.StatusPending, 1, now, &now)
		mock.ExpectQuery(query).WithArgs(event.StatusPending, 10).WillReturnRows(rows)

		records, err := repo.GetPending(ctx, 10)
		assert.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, int64(1), records[0].RowID)
		assert.Equal(t, event.TypeLoanIssued, records[0].Event.Type)
		assert.Nil(t, records[0].LastAttemptAt)
		assert.Equal(t, 1, records[1].Attempts)
		assert.NotNil(t, records[1].LastAttemptAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("query db error")
		mock.ExpectQuery(query).WithArgs(event.StatusPending, 10).WillReturnError(dbErr)

		records, err := repo.GetPending(ctx, 10)
		assert.Error(t, err)
		assert.Nil(t, records)
		assert.Contains(t, err.Error(), "failed to get pending outbox records")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: logger}
	rowID := int64(7)

	query := `
		UPDATE ledger_outbox
		SET status = \$1, last_attempt_at = \$2
		WHERE id = \$3
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(event.StatusProcessed, pgxmock.AnyArg(), rowID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.UpdateStatus(ctx, rowID, event.StatusProcessed)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(event.StatusFailed, pgxmock.AnyArg(), rowID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.UpdateStatus(ctx, rowID, event.StatusFailed)
		assert.Error(t, err)
		var notFound event.ErrRecordNotFound
		assert.ErrorAs(t, err, &notFound)
		assert.Equal(t, rowID, notFound.RowID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOutboxRepository_IncrementAttempts(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &OutboxRepository{querier: mock, logger: logger}
	rowID := int64(7)

	query := `
		UPDATE ledger_outbox
		SET attempts = attempts \+ 1, last_attempt_at = \$1
		WHERE id = \$2
	`

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(pgxmock.AnyArg(), rowID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := repo.IncrementAttempts(ctx, rowID)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(pgxmock.AnyArg(), rowID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.IncrementAttempts(ctx, rowID)
		assert.Error(t, err)
		var notFound event.ErrRecordNotFound
		assert.ErrorAs(t, err, &notFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
