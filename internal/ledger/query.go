package ledger

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
)

// QueryService is the read path. It never mutates and never trusts a
// cached balance field: every balance it reports is recomputed from the
// loan's current repayment set.
type QueryService struct {
	store  Store
	logger *slog.Logger
}

// NewQueryService creates a query service over the same store the
// engine writes to.
func NewQueryService(store Store, logger *slog.Logger) *QueryService {
	return &QueryService{
		store:  store,
		logger: logger,
	}
}

// AggregateStatistics is a point-in-time snapshot over the whole store.
type AggregateStatistics struct {
	TotalLoaned      money.Amount `json:"total_loaned"`
	TotalRepaid      money.Amount `json:"total_repaid"`
	TotalOutstanding money.Amount `json:"total_outstanding"`
	LoanCount        int64        `json:"loan_count"`
	RepaymentCount   int64        `json:"repayment_count"`
}

// LoanByID returns a single loan.
func (q *QueryService) LoanByID(ctx context.Context, loanID uuid.UUID) (*loan.Loan, error) {
	return q.store.LoanByID(ctx, loanID)
}

// LoanWithBalance returns a loan together with its recomputed balance.
func (q *QueryService) LoanWithBalance(ctx context.Context, loanID uuid.UUID) (*loan.Loan, *LoanBalance, error) {
	l, err := q.store.LoanByID(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	reps, err := q.store.RepaymentsForLoanDesc(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	balance, err := ComputeBalance(l, reps)
	if err != nil {
		return nil, nil, err
	}
	return l, balance, nil
}

// ActiveLoansForEmployee lists the employee's loans with status active.
func (q *QueryService) ActiveLoansForEmployee(ctx context.Context, employeeID int64) ([]*loan.Loan, error) {
	return q.store.LoansForEmployee(ctx, employeeID, true)
}

// LoansForEmployee lists all of the employee's loans regardless of status.
func (q *QueryService) LoansForEmployee(ctx context.Context, employeeID int64) ([]*loan.Loan, error) {
	return q.store.LoansForEmployee(ctx, employeeID, false)
}

// AllLoans lists every loan in the store.
func (q *QueryService) AllLoans(ctx context.Context) ([]*loan.Loan, error) {
	return q.store.AllLoans(ctx, false)
}

// ActiveLoans lists every active loan in the store.
func (q *QueryService) ActiveLoans(ctx context.Context) ([]*loan.Loan, error) {
	return q.store.AllLoans(ctx, true)
}

// RepaymentByID returns a single repayment.
func (q *QueryService) RepaymentByID(ctx context.Context, repaymentID uuid.UUID) (*repayment.Repayment, error) {
	return q.store.RepaymentByID(ctx, repaymentID)
}

// RepaymentHistory lists a loan's repayments ordered by date, newest
// first. Unknown loans fail with ErrLoanNotFound rather than returning
// an empty history.
func (q *QueryService) RepaymentHistory(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error) {
	if _, err := q.store.LoanByID(ctx, loanID); err != nil {
		return nil, err
	}
	return q.store.RepaymentsForLoanDesc(ctx, loanID)
}

// RepaymentsForEmployee lists every repayment recorded for the employee
// across all their loans.
func (q *QueryService) RepaymentsForEmployee(ctx context.Context, employeeID int64) ([]*repayment.Repayment, error) {
	return q.store.RepaymentsForEmployee(ctx, employeeID)
}

// TotalOutstandingForEmployee sums the remaining balances of the
// employee's active loans.
func (q *QueryService) TotalOutstandingForEmployee(ctx context.Context, employeeID int64) (money.Amount, error) {
	loans, err := q.store.LoansForEmployee(ctx, employeeID, true)
	if err != nil {
		return money.Amount{}, err
	}

	total := money.Zero()
	for _, l := range loans {
		reps, err := q.store.RepaymentsForLoanDesc(ctx, l.ID)
		if err != nil {
			return money.Amount{}, err
		}
		balance, err := ComputeBalance(l, reps)
		if err != nil {
			return money.Amount{}, err
		}
		total = total.Add(balance.Remaining)
	}
	return total, nil
}

// Statistics returns a point-in-time aggregate snapshot over the whole
// store. It accepts a last-committed view; it is not a decision input.
func (q *QueryService) Statistics(ctx context.Context) (*AggregateStatistics, error) {
	totals, err := q.store.AggregateTotals(ctx)
	if err != nil {
		return nil, err
	}

	outstanding, err := totals.TotalLoaned.Sub(totals.TotalRepaid)
	if err != nil {
		return nil, err
	}

	return &AggregateStatistics{
		TotalLoaned:      totals.TotalLoaned,
		TotalRepaid:      totals.TotalRepaid,
		TotalOutstanding: outstanding,
		LoanCount:        totals.LoanCount,
		RepaymentCount:   totals.RepaymentCount,
	}, nil
}
