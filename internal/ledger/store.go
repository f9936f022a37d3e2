package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/event"
	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
)

// Store is the persistence abstraction the engine and query service
// depend on. The engine never touches storage outside WithinTx; the
// query service uses the Reader side, which may observe a last-committed
// view but never hands out anything the engine would base a mutation on.
type Store interface {
	// WithinTx runs fn inside one storage transaction. Any error from fn
	// rolls the transaction back completely; contention and timeouts
	// surface as ErrRetryable with no partial state change.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	Reader
}

// Tx exposes the mutating operations available inside a transaction.
// GetLoanForUpdate locks the loan row, which serializes every mutation
// of the (loan, repayments) consistency group: the overpayment check is
// never evaluated against a stale balance, and among racing conflicting
// transactions the first committer wins.
type Tx interface {
	CreateLoan(ctx context.Context, l *loan.Loan) error
	GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error)
	UpdateLoan(ctx context.Context, l *loan.Loan) error
	DeleteLoan(ctx context.Context, id uuid.UUID) error

	CreateRepayment(ctx context.Context, r *repayment.Repayment) error
	GetRepayment(ctx context.Context, id uuid.UUID) (*repayment.Repayment, error)
	RepaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error)
	UpdateRepayment(ctx context.Context, r *repayment.Repayment) error
	DeleteRepayment(ctx context.Context, id uuid.UUID) error
	DeleteRepaymentsForLoan(ctx context.Context, loanID uuid.UUID) (int64, error)

	// AppendEvent stages a mutation event in the transactional outbox;
	// it commits or rolls back together with the mutation it describes.
	AppendEvent(ctx context.Context, evt *event.Event) error
}

// Reader is the non-locking read side used by query projections.
type Reader interface {
	LoanByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error)
	LoansForEmployee(ctx context.Context, employeeID int64, onlyActive bool) ([]*loan.Loan, error)
	AllLoans(ctx context.Context, onlyActive bool) ([]*loan.Loan, error)

	RepaymentByID(ctx context.Context, id uuid.UUID) (*repayment.Repayment, error)
	// RepaymentsForLoanDesc returns a loan's repayments ordered by repay
	// date, newest first.
	RepaymentsForLoanDesc(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error)
	RepaymentsForEmployee(ctx context.Context, employeeID int64) ([]*repayment.Repayment, error)

	AggregateTotals(ctx context.Context) (AggregateTotals, error)
}

// AggregateTotals is the store-level raw material for the statistics
// snapshot: sums and counts over the whole store at one point in time.
type AggregateTotals struct {
	TotalLoaned    money.Amount
	TotalRepaid    money.Amount
	LoanCount      int64
	RepaymentCount int64
}
