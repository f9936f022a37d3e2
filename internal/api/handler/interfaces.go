package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
	"github.com/employee-loan-ledger/internal/ledger"
)

// LedgerEngine is the mutating ledger surface the handlers depend on.
// Satisfied by *ledger.Engine.
type LedgerEngine interface {
	IssueLoan(ctx context.Context, employeeID int64, principal money.Amount, issueDate time.Time, reason string) (*loan.Loan, error)
	EditLoan(ctx context.Context, loanID uuid.UUID, params ledger.EditLoanParams) (*loan.Loan, error)
	SetLoanStatus(ctx context.Context, loanID uuid.UUID, status loan.Status) (*loan.Loan, error)
	DeleteLoan(ctx context.Context, loanID uuid.UUID, cascade bool) error
	RecordRepayment(ctx context.Context, loanID uuid.UUID, amount money.Amount, repayDate time.Time) (*ledger.RepaymentReceipt, error)
	EditRepayment(ctx context.Context, repaymentID uuid.UUID, params ledger.EditRepaymentParams) (*repayment.Repayment, error)
	DeleteRepayment(ctx context.Context, repaymentID uuid.UUID) error
	GetBalance(ctx context.Context, loanID uuid.UUID) (*ledger.LoanBalance, error)
}

// LedgerQueries is the read-only ledger surface the handlers depend on.
// Satisfied by *ledger.QueryService.
type LedgerQueries interface {
	LoanWithBalance(ctx context.Context, loanID uuid.UUID) (*loan.Loan, *ledger.LoanBalance, error)
	AllLoans(ctx context.Context) ([]*loan.Loan, error)
	ActiveLoans(ctx context.Context) ([]*loan.Loan, error)
	LoansForEmployee(ctx context.Context, employeeID int64) ([]*loan.Loan, error)
	ActiveLoansForEmployee(ctx context.Context, employeeID int64) ([]*loan.Loan, error)
	RepaymentByID(ctx context.Context, repaymentID uuid.UUID) (*repayment.Repayment, error)
	RepaymentHistory(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error)
	RepaymentsForEmployee(ctx context.Context, employeeID int64) ([]*repayment.Repayment, error)
	TotalOutstandingForEmployee(ctx context.Context, employeeID int64) (money.Amount, error)
	Statistics(ctx context.Context) (*ledger.AggregateStatistics, error)
}
