package loan

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/money"
)

// Common errors
var (
	ErrEmptyReason     = errors.New("loan reason cannot be empty")
	ErrFutureIssueDate = errors.New("loan issue date cannot be in the future")
	ErrInvalidStatus   = errors.New("loan status must be either 'active' or 'inactive'")
)

// ErrLoanNotFound indicates a missing loan
type ErrLoanNotFound struct {
	LoanID uuid.UUID
}

func (e ErrLoanNotFound) Error() string {
	return "loan not found: " + e.LoanID.String()
}

// Status is the loan visibility state. An inactive loan is excluded from
// active-loan projections and accepts no new repayments, but its
// repayment history is retained and its balance is unaffected.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ParseStatus validates a caller-supplied status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusInactive:
		return Status(s), nil
	default:
		return "", ErrInvalidStatus
	}
}

// Loan represents one loan issued to one employee. The employee itself
// is owned by an external system; only its identifier is kept here.
type Loan struct {
	ID         uuid.UUID    `json:"id"`
	EmployeeID int64        `json:"employee_id"`
	Principal  money.Amount `json:"principal"`
	IssueDate  time.Time    `json:"issue_date"` // calendar date, UTC midnight
	Reason     string       `json:"reason"`
	Status     Status       `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewLoan creates an active loan after validating principal, reason and
// issue date against the supplied current time.
func NewLoan(employeeID int64, principal money.Amount, issueDate time.Time, reason string, now time.Time) (*Loan, error) {
	if !principal.IsPositive() {
		return nil, money.ErrInvalidAmount
	}
	if reason == "" {
		return nil, ErrEmptyReason
	}
	issueDate = DateOnly(issueDate)
	if issueDate.After(DateOnly(now)) {
		return nil, ErrFutureIssueDate
	}

	return &Loan{
		ID:         uuid.New(),
		EmployeeID: employeeID,
		Principal:  principal,
		IssueDate:  issueDate,
		Reason:     reason,
		Status:     StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsActive reports whether the loan accepts repayments.
func (l *Loan) IsActive() bool {
	return l.Status == StatusActive
}

// DateOnly truncates a timestamp to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
