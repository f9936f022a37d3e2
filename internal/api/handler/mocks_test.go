package handler

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
	"github.com/employee-loan-ledger/internal/ledger"
)

type MockLedgerEngine struct {
	mock.Mock
}

func (m *MockLedgerEngine) IssueLoan(ctx context.Context, employeeID int64, principal money.Amount, issueDate time.Time, reason string) (*loan.Loan, error) {
	args := m.Called(ctx, employeeID, principal, issueDate, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Loan), args.Error(1)
}

func (m *MockLedgerEngine) EditLoan(ctx context.Context, loanID uuid.UUID, params ledger.EditLoanParams) (*loan.Loan, error) {
	args := m.Called(ctx, loanID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Loan), args.Error(1)
}

func (m *MockLedgerEngine) SetLoanStatus(ctx context.Context, loanID uuid.UUID, status loan.Status) (*loan.Loan, error) {
	args := m.Called(ctx, loanID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*loan.Loan), args.Error(1)
}

func (m *MockLedgerEngine) DeleteLoan(ctx context.Context, loanID uuid.UUID, cascade bool) error {
	args := m.Called(ctx, loanID, cascade)
	return args.Error(0)
}

func (m *MockLedgerEngine) RecordRepayment(ctx context.Context, loanID uuid.UUID, amount money.Amount, repayDate time.Time) (*ledger.RepaymentReceipt, error) {
	args := m.Called(ctx, loanID, amount, repayDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.RepaymentReceipt), args.Error(1)
}

func (m *MockLedgerEngine) EditRepayment(ctx context.Context, repaymentID uuid.UUID, params ledger.EditRepaymentParams) (*repayment.Repayment, error) {
	args := m.Called(ctx, repaymentID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repayment.Repayment), args.Error(1)
}

func (m *MockLedgerEngine) DeleteRepayment(ctx context.Context, repaymentID uuid.UUID) error {
	args := m.Called(ctx, repaymentID)
	return args.Error(0)
}

func (m *MockLedgerEngine) GetBalance(ctx context.Context, loanID uuid.UUID) (*ledger.LoanBalance, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.LoanBalance), args.Error(1)
}

type MockLedgerQueries struct {
	mock.Mock
}

func (m *MockLedgerQueries) LoanWithBalance(ctx context.Context, loanID uuid.UUID) (*loan.Loan, *ledger.LoanBalance, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*loan.Loan), args.Get(1).(*ledger.LoanBalance), args.Error(2)
}

func (m *MockLedgerQueries) AllLoans(ctx context.Context) ([]*loan.Loan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*loan.Loan), args.Error(1)
}

func (m *MockLedgerQueries) ActiveLoans(ctx context.Context) ([]*loan.Loan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*loan.Loan), args.Error(1)
}

func (m *MockLedgerQueries) LoansForEmployee(ctx context.Context, employeeID int64) ([]*loan.Loan, error) {
	args := m.Called(ctx, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*loan.Loan), args.Error(1)
}

func (m *MockLedgerQueries) ActiveLoansForEmployee(ctx context.Context, employeeID int64) ([]*loan.Loan, error) {
	args := m.Called(ctx, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*loan.Loan), args.Error(1)
}

func (m *MockLedgerQueries) RepaymentByID(ctx context.Context, repaymentID uuid.UUID) (*repayment.Repayment, error) {
	args := m.Called(ctx, repaymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repayment.Repayment), args.Error(1)
}

func (m *MockLedgerQueries) RepaymentHistory(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repayment.Repayment), args.Error(1)
}

func (m *MockLedgerQueries) RepaymentsForEmployee(ctx context.Context, employeeID int64) ([]*repayment.Repayment, error) {
	args := m.Called(ctx, employeeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repayment.Repayment), args.Error(1)
}

func (m *MockLedgerQueries) TotalOutstandingForEmployee(ctx context.Context, employeeID int64) (money.Amount, error) {
	args := m.Called(ctx, employeeID)
	return args.Get(0).(money.Amount), args.Error(1)
}

func (m *MockLedgerQueries) Statistics(ctx context.Context) (*ledger.AggregateStatistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.AggregateStatistics), args.Error(1)
}

var (
	_ LedgerEngine  = (*MockLedgerEngine)(nil)
	_ LedgerQueries = (*MockLedgerQueries)(nil)
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func mustAmount(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(s)
	require.NoError(t, err)
	return a
}

func testLoan(t *testing.T, employeeID int64, principal string) *loan.Loan {
	t.Helper()
	now := time.Now()
	return &loan.Loan{
		ID:         uuid.New(),
		EmployeeID: employeeID,
		Principal:  mustAmount(t, principal),
		IssueDate:  loan.DateOnly(now),
		Reason:     "laptop purchase",
		Status:     loan.StatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func testRepayment(t *testing.T, l *loan.Loan, amount string) *repayment.Repayment {
	t.Helper()
	now := time.Now()
	return &repayment.Repayment{
		ID:         uuid.New(),
		LoanID:     l.ID,
		EmployeeID: l.EmployeeID,
		Amount:     mustAmount(t, amount),
		RepayDate:  loan.DateOnly(now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
