package event

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

// Status tracks outbox delivery state for a stored event.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED_TO_PUBLISH"
)

// Record is an event as stored in the outbox, with delivery bookkeeping.
type Record struct {
	RowID         int64      `json:"row_id"`
	Event         Event      `json:"event"`
	Status        Status     `json:"status"`
	Attempts      int        `json:"attempts"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// Repository manages transactional outbox persistence. Create is called
// inside the same database transaction as the ledger mutation it
// describes; the relay drains pending records in FIFO order.
type Repository interface {
	Create(ctx context.Context, evt *Event) error
	GetPending(ctx context.Context, limit int) ([]*Record, error)
	UpdateStatus(ctx context.Context, rowID int64, status Status) error
	IncrementAttempts(ctx context.Context, rowID int64) error
	WithTx(tx pgx.Tx) Repository
}

// ErrRecordNotFound indicates a missing outbox record
type ErrRecordNotFound struct {
	RowID int64
}

func (e ErrRecordNotFound) Error() string {
	return "outbox record not found: " + strconv.FormatInt(e.RowID, 10)
}
