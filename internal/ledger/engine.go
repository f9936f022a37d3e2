// Package ledger implements the loan ledger engine: it maintains each
// loan's outstanding balance, validates every mutation against the
// current balance inside one storage transaction, and rejects anything
// that would overdraw a loan.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/event"
	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
)

// Engine executes all mutating ledger operations. It holds no ledger
// state of its own; every operation re-reads what it needs from the
// store inside its transaction boundary.
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a ledger engine on top of the given store.
func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EditLoanParams carries the optional fields of an EditLoan call. Nil
// means "leave unchanged".
type EditLoanParams struct {
	Principal *money.Amount
	Reason    *string
	IssueDate *time.Time
}

// EditRepaymentParams carries the optional fields of an EditRepayment call.
type EditRepaymentParams struct {
	Amount    *money.Amount
	RepayDate *time.Time
}

// RepaymentReceipt is returned by RecordRepayment: the persisted record
// plus the loan's new remaining balance for caller convenience. The
// remaining figure is derived, not persisted.
type RepaymentReceipt struct {
	Repayment *repayment.Repayment `json:"repayment"`
	Remaining money.Amount         `json:"remaining"`
}

// IssueLoan persists a new active loan for the employee.
func (e *Engine) IssueLoan(ctx context.Context, employeeID int64, principal money.Amount, issueDate time.Time, reason string) (*loan.Loan, error) {
	now := e.now()

	l, err := loan.NewLoan(employeeID, principal, issueDate, reason, now)
	if err != nil {
		return nil, err
	}

	err = e.store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateLoan(ctx, l); err != nil {
			return err
		}
		evt, err := event.NewLoanEvent(event.TypeLoanIssued, l, now)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("loan issued",
		"loan_id", l.ID.String(),
		"employee_id", l.EmployeeID,
		"principal", l.Principal.String(),
	)
	return l, nil
}

// EditLoan updates a loan's principal, reason and/or issue date. The
// loan's total repaid is recomputed inside the same transaction and a
// principal below it is rejected with ErrBalanceViolation.
func (e *Engine) EditLoan(ctx context.Context, loanID uuid.UUID, params EditLoanParams) (*loan.Loan, error) {
	now := e.now()
	var updated *loan.Loan

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		l, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		reps, err := tx.RepaymentsForLoan(ctx, loanID)
		if err != nil {
			return err
		}
		totalRepaid := repayment.Total(reps)

		if params.Principal != nil {
			p := *params.Principal
			if !p.IsPositive() {
				return money.ErrInvalidAmount
			}
			if p.LessThan(totalRepaid) {
				return ErrBalanceViolation{LoanID: loanID, Principal: p, TotalRepaid: totalRepaid}
			}
			l.Principal = p
		}
		if params.Reason != nil {
			if *params.Reason == "" {
				return loan.ErrEmptyReason
			}
			l.Reason = *params.Reason
		}
		if params.IssueDate != nil {
			d := loan.DateOnly(*params.IssueDate)
			if d.After(loan.DateOnly(now)) {
				return loan.ErrFutureIssueDate
			}
			l.IssueDate = d
		}
		l.UpdatedAt = now

		if err := tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		evt, err := event.NewLoanEvent(event.TypeLoanUpdated, l, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		updated = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("loan updated", "loan_id", loanID.String())
	return updated, nil
}

// SetLoanStatus flips a loan between active and inactive. The status is
// a free admin toggle: it does not affect balance math and inactivation
// does not forgive an outstanding balance, it only changes visibility
// in active-loan projections.
func (e *Engine) SetLoanStatus(ctx context.Context, loanID uuid.UUID, status loan.Status) (*loan.Loan, error) {
	now := e.now()
	var updated *loan.Loan

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		l, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		l.Status = status
		l.UpdatedAt = now

		if err := tx.UpdateLoan(ctx, l); err != nil {
			return err
		}
		evt, err := event.NewLoanEvent(event.TypeLoanStatusChanged, l, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		updated = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("loan status changed", "loan_id", loanID.String(), "status", string(status))
	return updated, nil
}

// DeleteLoan removes a loan. Without cascade, the delete is refused with
// ErrHasDependents if any repayments reference the loan. With cascade,
// the loan and all its repayments are removed in one transaction.
func (e *Engine) DeleteLoan(ctx context.Context, loanID uuid.UUID, cascade bool) error {
	now := e.now()

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		l, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		reps, err := tx.RepaymentsForLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if len(reps) > 0 {
			if !cascade {
				return ErrHasDependents{LoanID: loanID, Repayments: len(reps)}
			}
			if _, err := tx.DeleteRepaymentsForLoan(ctx, loanID); err != nil {
				return err
			}
		}
		if err := tx.DeleteLoan(ctx, loanID); err != nil {
			return err
		}
		evt, err := event.NewLoanEvent(event.TypeLoanDeleted, l, now)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		return err
	}

	e.logger.Info("loan deleted", "loan_id", loanID.String(), "cascade", cascade)
	return nil
}

// RecordRepayment applies a payment against a loan. The remaining
// balance is computed under the loan's lock; a repayment of exactly the
// remaining balance succeeds, anything above it fails with
// ErrOverpaymentRejected carrying the current remaining.
func (e *Engine) RecordRepayment(ctx context.Context, loanID uuid.UUID, amount money.Amount, repayDate time.Time) (*RepaymentReceipt, error) {
	now := e.now()
	var receipt *RepaymentReceipt

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		l, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if !l.IsActive() {
			return ErrLoanInactive{LoanID: loanID}
		}

		rep, err := repayment.NewRepayment(l, amount, repayDate, now)
		if err != nil {
			return err
		}

		reps, err := tx.RepaymentsForLoan(ctx, loanID)
		if err != nil {
			return err
		}
		remaining, err := l.Principal.Sub(repayment.Total(reps))
		if err != nil {
			return err
		}
		if amount.GreaterThan(remaining) {
			return ErrOverpaymentRejected{LoanID: loanID, Remaining: remaining, Attempted: amount}
		}

		if err := tx.CreateRepayment(ctx, rep); err != nil {
			return err
		}
		newRemaining, err := remaining.Sub(amount)
		if err != nil {
			return err
		}
		evt, err := event.NewRepaymentEvent(event.TypeRepaymentRecorded, rep, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		receipt = &RepaymentReceipt{Repayment: rep, Remaining: newRemaining}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("repayment recorded",
		"repayment_id", receipt.Repayment.ID.String(),
		"loan_id", loanID.String(),
		"amount", amount.String(),
		"remaining", receipt.Remaining.String(),
	)
	return receipt, nil
}

// EditRepayment changes a repayment's amount and/or date. The owning
// loan's total repaid is recomputed excluding the edited row, then the
// new amount is validated against the principal.
func (e *Engine) EditRepayment(ctx context.Context, repaymentID uuid.UUID, params EditRepaymentParams) (*repayment.Repayment, error) {
	now := e.now()
	var updated *repayment.Repayment

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		rep, err := tx.GetRepayment(ctx, repaymentID)
		if err != nil {
			return err
		}
		l, err := tx.GetLoanForUpdate(ctx, rep.LoanID)
		if err != nil {
			return err
		}
		// Re-read under the loan lock: a concurrent delete may have won.
		rep, err = tx.GetRepayment(ctx, repaymentID)
		if err != nil {
			return err
		}

		newAmount := rep.Amount
		if params.Amount != nil {
			newAmount = *params.Amount
			if !newAmount.IsPositive() {
				return money.ErrInvalidAmount
			}
		}

		reps, err := tx.RepaymentsForLoan(ctx, rep.LoanID)
		if err != nil {
			return err
		}
		totalExcluding := repayment.TotalExcluding(reps, rep.ID)
		if totalExcluding.Add(newAmount).GreaterThan(l.Principal) {
			remaining, err := l.Principal.Sub(totalExcluding)
			if err != nil {
				return err
			}
			return ErrOverpaymentRejected{LoanID: rep.LoanID, Remaining: remaining, Attempted: newAmount}
		}

		if params.RepayDate != nil {
			d := loan.DateOnly(*params.RepayDate)
			if d.After(loan.DateOnly(now)) {
				return repayment.ErrFutureRepayDate
			}
			rep.RepayDate = d
		}
		rep.Amount = newAmount
		rep.UpdatedAt = now

		if err := tx.UpdateRepayment(ctx, rep); err != nil {
			return err
		}
		evt, err := event.NewRepaymentEvent(event.TypeRepaymentUpdated, rep, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		updated = rep
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("repayment updated", "repayment_id", repaymentID.String())
	return updated, nil
}

// DeleteRepayment removes a repayment, restoring exactly its
// contribution to the loan's remaining balance. Always legal unless the
// repayment does not exist.
func (e *Engine) DeleteRepayment(ctx context.Context, repaymentID uuid.UUID) error {
	now := e.now()

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		rep, err := tx.GetRepayment(ctx, repaymentID)
		if err != nil {
			return err
		}
		if _, err := tx.GetLoanForUpdate(ctx, rep.LoanID); err != nil {
			return err
		}
		rep, err = tx.GetRepayment(ctx, repaymentID)
		if err != nil {
			return err
		}

		if err := tx.DeleteRepayment(ctx, repaymentID); err != nil {
			return err
		}
		evt, err := event.NewRepaymentEvent(event.TypeRepaymentDeleted, rep, now)
		if err != nil {
			return err
		}
		return tx.AppendEvent(ctx, evt)
	})
	if err != nil {
		return err
	}

	e.logger.Info("repayment deleted", "repayment_id", repaymentID.String())
	return nil
}

// GetBalance returns the loan's current balance view, read under the
// same locking discipline as mutations so it is never stale with
// respect to a concurrent repayment.
func (e *Engine) GetBalance(ctx context.Context, loanID uuid.UUID) (*LoanBalance, error) {
	var balance *LoanBalance

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		l, err := tx.GetLoanForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		reps, err := tx.RepaymentsForLoan(ctx, loanID)
		if err != nil {
			return err
		}
		balance, err = ComputeBalance(l, reps)
		return err
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}
