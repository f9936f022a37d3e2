package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/employee-loan-ledger/internal/config"
	"github.com/employee-loan-ledger/internal/domain/event"
	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
	"github.com/employee-loan-ledger/internal/ledger"
	"github.com/employee-loan-ledger/internal/platform/persistence"
)

// SQLSTATE codes that mean the transaction lost a concurrency race and
// can be retried as-is.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

// Store implements ledger.Store on top of PostgreSQL. Mutations run in
// a single database transaction with the loan row locked, so validation
// always sees the committed balance and the first committer wins.
type Store struct {
	db          *persistence.PostgresDB
	loans       *LoanRepository
	repayments  *RepaymentRepository
	outbox      event.Repository
	txTimeout   time.Duration
	lockTimeout time.Duration
	logger      *slog.Logger
}

// compile-time interface check
var _ ledger.Store = (*Store)(nil)

// NewStore creates a PostgreSQL-backed ledger store. cfg.TxTimeout
// bounds every WithinTx call and cfg.LockTimeout bounds the wait for
// the loan row lock; zero disables the respective bound.
func NewStore(logger *slog.Logger, db *persistence.PostgresDB, cfg *config.PostgresConfig) *Store {
	return &Store{
		db:          db,
		loans:       NewLoanRepository(logger, db),
		repayments:  NewRepaymentRepository(logger, db),
		outbox:      NewOutboxRepository(logger, db),
		txTimeout:   cfg.TxTimeout,
		lockTimeout: cfg.LockTimeout,
		logger:      logger,
	}
}

// WithinTx runs fn inside one database transaction. Lock contention,
// serialization failures and deadline expiry surface as
// ledger.ErrRetryable; everything else rolls back unchanged.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}

	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		if s.lockTimeout > 0 {
			if _, err := tx.Exec(ctx, lockTimeoutSQL(s.lockTimeout)); err != nil {
				return fmt.Errorf("failed to set lock timeout: %w", err)
			}
		}
		return fn(&storeTx{
			loans:      s.loans.WithTx(tx),
			repayments: s.repayments.WithTx(tx),
			outbox:     s.outbox.WithTx(tx),
		})
	})
	if err != nil {
		return mapRetryable(err)
	}

	return nil
}

// lockTimeoutSQL bounds how long this transaction waits for the loan
// row lock. SET LOCAL reverts at transaction end, and a lapsed wait
// raises SQLSTATE 55P03 which mapRetryable turns into ErrRetryable.
func lockTimeoutSQL(d time.Duration) string {
	return fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())
}

func mapRetryable(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return ledger.ErrRetryable{Cause: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ledger.ErrRetryable{Cause: err}
	}
	return err
}

// storeTx adapts the transaction-bound repositories to the ledger.Tx
// surface the engine operates on.
type storeTx struct {
	loans      *LoanRepository
	repayments *RepaymentRepository
	outbox     event.Repository
}

func (t *storeTx) CreateLoan(ctx context.Context, l *loan.Loan) error {
	return t.loans.Create(ctx, l)
}

func (t *storeTx) GetLoanForUpdate(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	return t.loans.GetForUpdate(ctx, id)
}

func (t *storeTx) UpdateLoan(ctx context.Context, l *loan.Loan) error {
	return t.loans.Update(ctx, l)
}

func (t *storeTx) DeleteLoan(ctx context.Context, id uuid.UUID) error {
	return t.loans.Delete(ctx, id)
}

func (t *storeTx) CreateRepayment(ctx context.Context, r *repayment.Repayment) error {
	return t.repayments.Create(ctx, r)
}

func (t *storeTx) GetRepayment(ctx context.Context, id uuid.UUID) (*repayment.Repayment, error) {
	return t.repayments.GetByID(ctx, id)
}

func (t *storeTx) RepaymentsForLoan(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error) {
	return t.repayments.ListForLoan(ctx, loanID)
}

func (t *storeTx) UpdateRepayment(ctx context.Context, r *repayment.Repayment) error {
	return t.repayments.Update(ctx, r)
}

func (t *storeTx) DeleteRepayment(ctx context.Context, id uuid.UUID) error {
	return t.repayments.Delete(ctx, id)
}

func (t *storeTx) DeleteRepaymentsForLoan(ctx context.Context, loanID uuid.UUID) (int64, error) {
	return t.repayments.DeleteForLoan(ctx, loanID)
}

func (t *storeTx) AppendEvent(ctx context.Context, evt *event.Event) error {
	return t.outbox.Create(ctx, evt)
}

// Reader side. These run against the pool without locks; they observe
// the last committed state.

func (s *Store) LoanByID(ctx context.Context, id uuid.UUID) (*loan.Loan, error) {
	return s.loans.GetByID(ctx, id)
}

func (s *Store) LoansForEmployee(ctx context.Context, employeeID int64, onlyActive bool) ([]*loan.Loan, error) {
	return s.loans.ListByEmployee(ctx, employeeID, onlyActive)
}

func (s *Store) AllLoans(ctx context.Context, onlyActive bool) ([]*loan.Loan, error) {
	return s.loans.ListAll(ctx, onlyActive)
}

func (s *Store) RepaymentByID(ctx context.Context, id uuid.UUID) (*repayment.Repayment, error) {
	return s.repayments.GetByID(ctx, id)
}

func (s *Store) RepaymentsForLoanDesc(ctx context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error) {
	return s.repayments.ListForLoanDesc(ctx, loanID)
}

func (s *Store) RepaymentsForEmployee(ctx context.Context, employeeID int64) ([]*repayment.Repayment, error) {
	return s.repayments.ListForEmployee(ctx, employeeID)
}

// AggregateTotals computes store-wide sums and counts in one statement
// so the snapshot is taken at a single point in time.
func (s *Store) AggregateTotals(ctx context.Context) (ledger.AggregateTotals, error) {
	query := `
		SELECT
			(SELECT COALESCE(SUM(principal), 0) FROM loans)::text,
			(SELECT COUNT(*) FROM loans),
			(SELECT COALESCE(SUM(amount), 0) FROM repayments)::text,
			(SELECT COUNT(*) FROM repayments)
	`

	var totalLoaned, totalRepaid string
	var totals ledger.AggregateTotals
	err := s.db.Pool().QueryRow(ctx, query).Scan(
		&totalLoaned,
		&totals.LoanCount,
		&totalRepaid,
		&totals.RepaymentCount,
	)
	if err != nil {
		s.logger.Error("Failed to compute aggregate totals", "error", err)
		return ledger.AggregateTotals{}, fmt.Errorf("failed to compute aggregate totals: %w", err)
	}

	if totals.TotalLoaned, err = money.Parse(totalLoaned); err != nil {
		return ledger.AggregateTotals{}, fmt.Errorf("failed to parse total loaned: %w", err)
	}
	if totals.TotalRepaid, err = money.Parse(totalRepaid); err != nil {
		return ledger.AggregateTotals{}, fmt.Errorf("failed to parse total repaid: %w", err)
	}

	return totals, nil
}
