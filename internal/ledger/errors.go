package ledger

import (
	"strconv"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/money"
)

// ErrOverpaymentRejected indicates a repayment (or repayment edit) that
// would push the loan's total repaid above its principal. Remaining is
// the balance at the instant of rejection so callers can surface it.
type ErrOverpaymentRejected struct {
	LoanID    uuid.UUID
	Remaining money.Amount
	Attempted money.Amount
}

func (e ErrOverpaymentRejected) Error() string {
	return "repayment would exceed loan principal for loan " + e.LoanID.String() +
		": maximum allowed " + e.Remaining.String() + ", attempted " + e.Attempted.String()
}

// ErrBalanceViolation indicates an attempt to edit a loan's principal
// below what has already been repaid.
type ErrBalanceViolation struct {
	LoanID      uuid.UUID
	Principal   money.Amount
	TotalRepaid money.Amount
}

func (e ErrBalanceViolation) Error() string {
	return "loan " + e.LoanID.String() + " principal " + e.Principal.String() +
		" cannot drop below total repaid " + e.TotalRepaid.String()
}

// ErrLoanInactive indicates a repayment attempted against an inactive loan.
type ErrLoanInactive struct {
	LoanID uuid.UUID
}

func (e ErrLoanInactive) Error() string {
	return "cannot repay inactive loan " + e.LoanID.String()
}

// ErrHasDependents indicates a non-cascading delete blocked by existing
// repayments.
type ErrHasDependents struct {
	LoanID     uuid.UUID
	Repayments int
}

func (e ErrHasDependents) Error() string {
	return "loan " + e.LoanID.String() + " has " + strconv.Itoa(e.Repayments) +
		" repayments; delete with cascade or remove them first"
}

// ErrRetryable wraps transient store contention or timeout failures.
// The engine guarantees no partial state change occurred, so the caller
// may safely resubmit the identical request.
type ErrRetryable struct {
	Cause error
}

func (e ErrRetryable) Error() string {
	return "transient store failure, retry the request: " + e.Cause.Error()
}

func (e ErrRetryable) Unwrap() error {
	return e.Cause
}
