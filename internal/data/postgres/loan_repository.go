// Package postgres provides the PostgreSQL persistence layer for the
// loan ledger. All balance-validating mutations go through row locks on
// the owning loan, so the (loan, repayments) group is always read and
// written as one consistent unit.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/platform/persistence"
)

// LoanRepository persists loan records.
type LoanRepository struct {
	querier persistence.Querier // *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewLoanRepository creates a pool-backed loan repository.
func NewLoanRepository(logger *slog.Logger, db *persistence.PostgresDB) *LoanRepository {
	return &LoanRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to the given transaction.
func (r *LoanRepository) WithTx(tx pgx.Tx) *LoanRepository {
	return &LoanRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const loanColumns = `id, employee_id, principal::text, issue_date, reason, status, created_at, updated_at`

func scanLoan(row pgx.Row) (*loan.Loan, error) {
	var l loan.Loan
	var principal string
	err := row.Scan(
		&l.ID,
		&l.EmployeeID,
		&principal,
		&l.IssueDate,
		&l.Reason,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Principal, err = money.Parse(principal)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored principal: %w", err)
	}
	l.IssueDate = loan.DateOnly(l.IssueDate)
	return &l, nil
}

// Create stores a new loan.
func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) error {
	query := `
		INSERT INTO loans (id, employee_id, principal, issue_date, reason, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		l.ID,
		l.EmployeeID,
		l.Principal.String(),
		l.IssueDate,
		l.Reason,
		l.Status,
		l.CreatedAt,
		l.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create loan", "loan_id", l.ID.String(), "error", err)
		return fmt.Errorf("failed to create loan: %w", err)
	}

	return nil
}

// GetByID retrieves a loan without locking it. Use GetForUpdate inside
// a transaction that validates balances.
func (r *LoanRepository) GetByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`

	l, err := scanLoan(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrLoanNotFound{LoanID: id}
		}
		r.logger.Error("Failed to get loan", "loan_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}

	return l, nil
}

// GetForUpdate obtains a row lock on the loan and returns its current
// state. Every transaction that mutates the loan or its repayments
// acquires this lock first, serializing the consistency group.
func (r *LoanRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`

	l, err := scanLoan(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, loan.ErrLoanNotFound{LoanID: id}
		}
		r.logger.Error("Failed to lock loan for update", "loan_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock loan for update: %w", err)
	}

	return l, nil
}

// Update persists an edited loan.
func (r *LoanRepository) Update(ctx context.Context, l *loan.Loan) error {
	query := `
		UPDATE loans
		SET principal = $1, issue_date = $2, reason = $3, status = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := r.querier.Exec(ctx, query,
		l.Principal.String(),
		l.IssueDate,
		l.Reason,
		l.Status,
		l.UpdatedAt,
		l.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update loan", "loan_id", l.ID.String(), "error", err)
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return loan.ErrLoanNotFound{LoanID: l.ID}
	}

	return nil
}

// Delete removes a loan row.
func (r *LoanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.querier.Exec(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete loan", "loan_id", id.String(), "error", err)
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return loan.ErrLoanNotFound{LoanID: id}
	}

	return nil
}

// ListByEmployee returns the employee's loans, optionally only active
// ones, oldest first.
func (r *LoanRepository) ListByEmployee(ctx context.Context, employeeID int64, onlyActive bool) ([]*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE employee_id = $1`
	args := []interface{}{employeeID}
	if onlyActive {
		query += ` AND status = $2`
		args = append(args, loan.StatusActive)
	}
	query += ` ORDER BY created_at ASC`

	return r.list(ctx, query, args...)
}

// ListAll returns every loan, optionally only active ones, oldest first.
func (r *LoanRepository) ListAll(ctx context.Context, onlyActive bool) ([]*loan.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans`
	var args []interface{}
	if onlyActive {
		query += ` WHERE status = $1`
		args = append(args, loan.StatusActive)
	}
	query += ` ORDER BY created_at ASC`

	return r.list(ctx, query, args...)
}

func (r *LoanRepository) list(ctx context.Context, query string, args ...interface{}) ([]*loan.Loan, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list loans", "error", err)
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}
	defer rows.Close()

	var loans []*loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			r.logger.Error("Failed to scan loan", "error", err)
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over loans: %w", err)
	}

	return loans, nil
}
