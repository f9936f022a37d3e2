// Package event defines the ledger mutation events that are appended to
// the transactional outbox alongside every committed change and later
// relayed to Kafka. Consumers (payroll, reporting) see every mutation
// exactly as the ledger committed it; a failed publish never affects
// ledger state.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/repayment"
)

// Type identifies the kind of ledger mutation an event describes.
type Type string

const (
	TypeLoanIssued        Type = "loan.issued"
	TypeLoanUpdated       Type = "loan.updated"
	TypeLoanStatusChanged Type = "loan.status_changed"
	TypeLoanDeleted       Type = "loan.deleted"
	TypeRepaymentRecorded Type = "repayment.recorded"
	TypeRepaymentUpdated  Type = "repayment.updated"
	TypeRepaymentDeleted  Type = "repayment.deleted"
)

// Event is one ledger mutation. Payload carries a snapshot of the
// affected record as committed.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"type"`
	LoanID     uuid.UUID       `json:"loan_id"`
	EmployeeID int64           `json:"employee_id"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewLoanEvent builds an event carrying a loan snapshot.
func NewLoanEvent(t Type, l *loan.Loan, now time.Time) (*Event, error) {
	payload, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:         uuid.New(),
		Type:       t,
		LoanID:     l.ID,
		EmployeeID: l.EmployeeID,
		Payload:    payload,
		OccurredAt: now,
	}, nil
}

// NewRepaymentEvent builds an event carrying a repayment snapshot.
func NewRepaymentEvent(t Type, r *repayment.Repayment, now time.Time) (*Event, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:         uuid.New(),
		Type:       t,
		LoanID:     r.LoanID,
		EmployeeID: r.EmployeeID,
		Payload:    payload,
		OccurredAt: now,
	}, nil
}
