package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
	"github.com/employee-loan-ledger/internal/platform/persistence"
)

// RepaymentRepository persists repayment records.
type RepaymentRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewRepaymentRepository creates a pool-backed repayment repository.
func NewRepaymentRepository(logger *slog.Logger, db *persistence.PostgresDB) *RepaymentRepository {
	return &RepaymentRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to the given transaction.
func (r *RepaymentRepository) WithTx(tx pgx.Tx) *RepaymentRepository {
	return &RepaymentRepository{
		querier: tx,
		logger:  r.logger,
	}
}

const repaymentColumns = `id, loan_id, employee_id, amount::text, repay_date, created_at, updated_at`

func scanRepayment(row pgx.Row) (*repayment.Repayment, error) {
	var rp repayment.Repayment
	var amount string
	err := row.Scan(
		&rp.ID,
		&rp.LoanID,
		&rp.EmployeeID,
		&amount,
		&rp.RepayDate,
		&rp.CreatedAt,
		&rp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rp.Amount, err = money.Parse(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored amount: %w", err)
	}
	return &rp, nil
}

// Create stores a new repayment.
func (r *RepaymentRepository) Create(ctx context.Context, rp *repayment.Repayment) error {
	query := `
		INSERT INTO repayments (id, loan_id, employee_id, amount, repay_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.querier.Exec(ctx, query,
		rp.ID,
		rp.LoanID,
		rp.EmployeeID,
		rp.Amount.String(),
		rp.RepayDate,
		rp.CreatedAt,
		rp.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create repayment", "repayment_id", rp.ID.String(), "error", err)
		return fmt.Errorf("failed to create repayment: %w", err)
	}

	return nil
}

// GetByID retrieves a single repayment.
func (r *RepaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*repayment.Repayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM repayments WHERE id = $1`

	rp, err := scanRepayment(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repayment.ErrRepaymentNotFound{RepaymentID: id}
		}
		r.logger.Error("Failed to get repayment", "repayment_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get repayment: %w", err)
	}

	return rp, nil
}

// Update persists an edited repayment.
func (r *RepaymentRepository) Update(ctx context.Context, rp *repayment.Repayment) error {
	query := `
		UPDATE repayments
		SET amount = $1, repay_date = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.querier.Exec(ctx, query,
		rp.Amount.String(),
		rp.RepayDate,
		rp.UpdatedAt,
		rp.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update repayment", "repayment_id", rp.ID.String(), "error", err)
		return fmt.Errorf("failed to update repayment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repayment.ErrRepaymentNotFound{RepaymentID: rp.ID}
	}

	return nil
}

// Delete removes a repayment row.
func (r *RepaymentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.querier.Exec(ctx, `DELETE FROM repayments WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete repayment", "repayment_id", id.String(), "error", err)
		return fmt.Errorf("failed to delete repayment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repayment.ErrRepaymentNotFound{RepaymentID: id}
	}

	return nil
}

// DeleteForLoan removes all repayments of a loan. Used by the cascade
// delete; returns the number of rows removed.
func (r *RepaymentRepository) DeleteForLoan(ctx context.Context, loanID uuid.UUID) (int64, error) {
	result, err := r.querier.Exec(ctx, `DELETE FROM repayments WHERE loan_id = $1`, loanID)
	if err != nil {
		r.logger.Error("Failed to delete repayments for loan", "loan_id", loanID.String(), "error", err)
		return 0, fmt.Errorf("failed to delete repayments for loan: %w", err)
	}

	return result.RowsAffected(), nil
}

// ListForLoan returns all repayments of a loan in insertion order.
func (r *RepaymentRepository) ListForLoan(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM repayments WHERE loan_id = $1 ORDER BY created_at ASC`
	return r.list(ctx, query, loanID)
}

// ListForLoanDesc returns a loan's repayments newest first by repay
// date, with creation time as tiebreak.
func (r *RepaymentRepository) ListForLoanDesc(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM repayments WHERE loan_id = $1 ORDER BY repay_date DESC, created_at DESC`
	return r.list(ctx, query, loanID)
}

// ListForEmployee returns all repayments recorded against an employee's
// loans, newest first by repay date.
func (r *RepaymentRepository) ListForEmployee(ctx context.Context, employeeID int64) ([]*repayment.Repayment, error) {
	query := `SELECT ` + repaymentColumns + ` FROM repayments WHERE employee_id = $1 ORDER BY repay_date DESC, created_at DESC`
	return r.list(ctx, query, employeeID)
}

func (r *RepaymentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*repayment.Repayment, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list repayments", "error", err)
		return nil, fmt.Errorf("failed to list repayments: %w", err)
	}
	defer rows.Close()

	var repayments []*repayment.Repayment
	for rows.Next() {
		rp, err := scanRepayment(rows)
		if err != nil {
			r.logger.Error("Failed to scan repayment", "error", err)
			return nil, fmt.Errorf("failed to scan repayment: %w", err)
		}
		repayments = append(repayments, rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over repayments: %w", err)
	}

	return repayments, nil
}
