package repayment

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
)

// ErrFutureRepayDate indicates a repayment dated after today.
var ErrFutureRepayDate = errors.New("repayment date cannot be in the future")

// ErrRepaymentNotFound indicates a missing repayment
type ErrRepaymentNotFound struct {
	RepaymentID uuid.UUID
}

func (e ErrRepaymentNotFound) Error() string {
	return "repayment not found: " + e.RepaymentID.String()
}

// Repayment represents one payment applied against exactly one loan.
// EmployeeID is denormalized from the owning loan for query convenience;
// it is set by the ledger engine, never by callers.
type Repayment struct {
	ID         uuid.UUID    `json:"id"`
	LoanID     uuid.UUID    `json:"loan_id"`
	EmployeeID int64        `json:"employee_id"`
	Amount     money.Amount `json:"amount"`
	RepayDate  time.Time    `json:"repay_date"` // calendar date, UTC midnight
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// NewRepayment creates a repayment against the given loan after
// validating amount and date. The overpayment check is the engine's
// responsibility; it needs the loan's full repayment set.
func NewRepayment(l *loan.Loan, amount money.Amount, repayDate time.Time, now time.Time) (*Repayment, error) {
	if !amount.IsPositive() {
		return nil, money.ErrInvalidAmount
	}
	repayDate = loan.DateOnly(repayDate)
	if repayDate.After(loan.DateOnly(now)) {
		return nil, ErrFutureRepayDate
	}

	return &Repayment{
		ID:         uuid.New(),
		LoanID:     l.ID,
		EmployeeID: l.EmployeeID,
		Amount:     amount,
		RepayDate:  repayDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Total sums the amounts of the given repayments.
func Total(reps []*Repayment) money.Amount {
	total := money.Zero()
	for _, r := range reps {
		total = total.Add(r.Amount)
	}
	return total
}

// TotalExcluding sums the amounts of the given repayments, skipping the
// one with the given id. Used when re-validating an edit.
func TotalExcluding(reps []*Repayment, exclude uuid.UUID) money.Amount {
	total := money.Zero()
	for _, r := range reps {
		if r.ID == exclude {
			continue
		}
		total = total.Add(r.Amount)
	}
	return total
}
