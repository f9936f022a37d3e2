package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/employee-loan-ledger/internal/data/memory"
	"github.com/employee-loan-ledger/internal/domain/event"
	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
	"github.com/employee-loan-ledger/internal/ledger"
)

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*ledger.Engine, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	eng := ledger.NewEngine(store, logger, ledger.WithClock(func() time.Time { return testNow }))
	return eng, store
}

func amt(t *testing.T, s string) money.Amount {
	t.Helper()
	a, err := money.Parse(s)
	require.NoError(t, err)
	return a
}

func issue(t *testing.T, eng *ledger.Engine, employeeID int64, principal string) *loan.Loan {
	t.Helper()
	l, err := eng.IssueLoan(context.Background(), employeeID, amt(t, principal), testNow, "advance")
	require.NoError(t, err)
	return l
}

func TestIssueLoan(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	t.Run("success", func(t *testing.T) {
		l, err := eng.IssueLoan(ctx, 42, amt(t, "1000.00"), testNow, "school fees")
		require.NoError(t, err)
		assert.Equal(t, loan.StatusActive, l.Status)

		got, err := store.LoanByID(ctx, l.ID)
		require.NoError(t, err)
		assert.Equal(t, "1000.00", got.Principal.String())
	})

	t.Run("non-positive principal", func(t *testing.T) {
		_, err := eng.IssueLoan(ctx, 42, money.Zero(), testNow, "reason")
		assert.ErrorIs(t, err, money.ErrInvalidAmount)
	})

	t.Run("future issue date", func(t *testing.T) {
		_, err := eng.IssueLoan(ctx, 42, amt(t, "10.00"), testNow.AddDate(0, 0, 2), "reason")
		assert.ErrorIs(t, err, loan.ErrFutureIssueDate)
	})

	t.Run("emits event", func(t *testing.T) {
		events := store.Events()
		require.NotEmpty(t, events)
		assert.Equal(t, event.TypeLoanIssued, events[0].Type)
	})
}

// Exact overpayment boundary: repaying the full remaining balance
// succeeds, one cent above it is rejected.
func TestRecordRepayment_ExactBoundary(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "1000.00")

	receipt, err := eng.RecordRepayment(ctx, l.ID, amt(t, "1000.00"), testNow)
	require.NoError(t, err)
	assert.True(t, receipt.Remaining.IsZero())

	_, err = eng.RecordRepayment(ctx, l.ID, amt(t, "0.01"), testNow)
	var overpay ledger.ErrOverpaymentRejected
	require.ErrorAs(t, err, &overpay)
	assert.Equal(t, "0.00", overpay.Remaining.String())
	assert.Equal(t, "0.01", overpay.Attempted.String())
}

func TestRecordRepayment_Validation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "500.00")

	t.Run("unknown loan", func(t *testing.T) {
		_, err := eng.RecordRepayment(ctx, uuid.New(), amt(t, "10.00"), testNow)
		var notFound loan.ErrLoanNotFound
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		_, err := eng.RecordRepayment(ctx, l.ID, money.Zero(), testNow)
		assert.ErrorIs(t, err, money.ErrInvalidAmount)
	})

	t.Run("future repay date", func(t *testing.T) {
		_, err := eng.RecordRepayment(ctx, l.ID, amt(t, "10.00"), testNow.AddDate(0, 0, 1))
		assert.ErrorIs(t, err, repayment.ErrFutureRepayDate)
	})

	t.Run("overpayment carries remaining", func(t *testing.T) {
		_, err := eng.RecordRepayment(ctx, l.ID, amt(t, "200.00"), testNow)
		require.NoError(t, err)

		_, err = eng.RecordRepayment(ctx, l.ID, amt(t, "300.01"), testNow)
		var overpay ledger.ErrOverpaymentRejected
		require.ErrorAs(t, err, &overpay)
		assert.Equal(t, "300.00", overpay.Remaining.String())
	})

	t.Run("inactive loan accepts no repayments", func(t *testing.T) {
		inactive := issue(t, eng, 2, "100.00")
		_, err := eng.SetLoanStatus(ctx, inactive.ID, loan.StatusInactive)
		require.NoError(t, err)

		_, err = eng.RecordRepayment(ctx, inactive.ID, amt(t, "10.00"), testNow)
		var errInactive ledger.ErrLoanInactive
		assert.ErrorAs(t, err, &errInactive)
	})

	t.Run("employee id denormalized from loan", func(t *testing.T) {
		receipt, err := eng.RecordRepayment(ctx, l.ID, amt(t, "1.00"), testNow)
		require.NoError(t, err)
		assert.Equal(t, l.EmployeeID, receipt.Repayment.EmployeeID)
	})
}

// Deleting a repayment restores exactly its contribution to the balance.
func TestDeleteRepayment_RestoresBalance(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "500.00")

	receipt, err := eng.RecordRepayment(ctx, l.ID, amt(t, "300.00"), testNow)
	require.NoError(t, err)
	assert.Equal(t, "200.00", receipt.Remaining.String())

	require.NoError(t, eng.DeleteRepayment(ctx, receipt.Repayment.ID))

	balance, err := eng.GetBalance(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", balance.Remaining.String())

	// The freed balance is immediately usable in full.
	_, err = eng.RecordRepayment(ctx, l.ID, amt(t, "500.00"), testNow)
	assert.NoError(t, err)

	err = eng.DeleteRepayment(ctx, uuid.New())
	var notFound repayment.ErrRepaymentNotFound
	assert.ErrorAs(t, err, &notFound)
}

// Edit re-validation: principal edits are checked against total repaid,
// and subsequent repayments see the edited principal.
func TestEditLoan_Revalidation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "1000.00")

	_, err := eng.RecordRepayment(ctx, l.ID, amt(t, "800.00"), testNow)
	require.NoError(t, err)

	lower := amt(t, "700.00")
	_, err = eng.EditLoan(ctx, l.ID, ledger.EditLoanParams{Principal: &lower})
	var violation ledger.ErrBalanceViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "800.00", violation.TotalRepaid.String())

	ok := amt(t, "900.00")
	updated, err := eng.EditLoan(ctx, l.ID, ledger.EditLoanParams{Principal: &ok})
	require.NoError(t, err)
	assert.Equal(t, "900.00", updated.Principal.String())

	_, err = eng.RecordRepayment(ctx, l.ID, amt(t, "150.00"), testNow)
	var overpay ledger.ErrOverpaymentRejected
	require.ErrorAs(t, err, &overpay)
	assert.Equal(t, "100.00", overpay.Remaining.String())

	_, err = eng.RecordRepayment(ctx, l.ID, amt(t, "100.00"), testNow)
	assert.NoError(t, err)
}

func TestEditLoan_FieldValidation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "100.00")

	empty := ""
	_, err := eng.EditLoan(ctx, l.ID, ledger.EditLoanParams{Reason: &empty})
	assert.ErrorIs(t, err, loan.ErrEmptyReason)

	future := testNow.AddDate(0, 1, 0)
	_, err = eng.EditLoan(ctx, l.ID, ledger.EditLoanParams{IssueDate: &future})
	assert.ErrorIs(t, err, loan.ErrFutureIssueDate)

	_, err = eng.EditLoan(ctx, uuid.New(), ledger.EditLoanParams{})
	var notFound loan.ErrLoanNotFound
	assert.ErrorAs(t, err, &notFound)

	reason := "updated reason"
	updated, err := eng.EditLoan(ctx, l.ID, ledger.EditLoanParams{Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, "updated reason", updated.Reason)
}

func TestEditRepayment(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "1000.00")

	_, err := eng.RecordRepayment(ctx, l.ID, amt(t, "600.00"), testNow)
	require.NoError(t, err)
	second, err := eng.RecordRepayment(ctx, l.ID, amt(t, "200.00"), testNow)
	require.NoError(t, err)

	// 600 from the other repayment leaves 400 of headroom for this one.
	over := amt(t, "400.01")
	_, err = eng.EditRepayment(ctx, second.Repayment.ID, ledger.EditRepaymentParams{Amount: &over})
	var overpay ledger.ErrOverpaymentRejected
	require.ErrorAs(t, err, &overpay)
	assert.Equal(t, "400.00", overpay.Remaining.String())

	exact := amt(t, "400.00")
	updated, err := eng.EditRepayment(ctx, second.Repayment.ID, ledger.EditRepaymentParams{Amount: &exact})
	require.NoError(t, err)
	assert.Equal(t, "400.00", updated.Amount.String())

	balance, err := eng.GetBalance(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, balance.Remaining.IsZero())

	_, err = eng.EditRepayment(ctx, uuid.New(), ledger.EditRepaymentParams{})
	var notFound repayment.ErrRepaymentNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestSetLoanStatus_FreeToggle(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "300.00")

	_, err := eng.RecordRepayment(ctx, l.ID, amt(t, "100.00"), testNow)
	require.NoError(t, err)

	// Inactivation with an outstanding balance is allowed and does not
	// forgive the balance.
	updated, err := eng.SetLoanStatus(ctx, l.ID, loan.StatusInactive)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusInactive, updated.Status)

	balance, err := eng.GetBalance(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "200.00", balance.Remaining.String())

	updated, err = eng.SetLoanStatus(ctx, l.ID, loan.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusActive, updated.Status)
}

func TestDeleteLoan(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)

	t.Run("without repayments", func(t *testing.T) {
		l := issue(t, eng, 1, "100.00")
		require.NoError(t, eng.DeleteLoan(ctx, l.ID, false))

		_, err := store.LoanByID(ctx, l.ID)
		var notFound loan.ErrLoanNotFound
		assert.ErrorAs(t, err, &notFound)
	})

	t.Run("dependents block plain delete", func(t *testing.T) {
		l := issue(t, eng, 2, "300.00")
		for i := 0; i < 3; i++ {
			_, err := eng.RecordRepayment(ctx, l.ID, amt(t, "50.00"), testNow)
			require.NoError(t, err)
		}

		err := eng.DeleteLoan(ctx, l.ID, false)
		var dependents ledger.ErrHasDependents
		require.ErrorAs(t, err, &dependents)
		assert.Equal(t, 3, dependents.Repayments)

		// Cascade removes the loan and every repayment.
		require.NoError(t, eng.DeleteLoan(ctx, l.ID, true))
		reps, err := store.RepaymentsForLoanDesc(ctx, l.ID)
		require.NoError(t, err)
		assert.Empty(t, reps)
	})

	t.Run("unknown loan", func(t *testing.T) {
		err := eng.DeleteLoan(ctx, uuid.New(), true)
		var notFound loan.ErrLoanNotFound
		assert.ErrorAs(t, err, &notFound)
	})
}

// failingStore wraps the memory store and makes loan deletion fail,
// simulating an abort in the middle of a cascade delete.
type failingStore struct {
	*memory.Store
}

var errInjected = errors.New("injected store failure")

func (s *failingStore) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.Store.WithinTx(ctx, func(tx ledger.Tx) error {
		return fn(&failingTx{Tx: tx})
	})
}

type failingTx struct {
	ledger.Tx
}

func (t *failingTx) DeleteLoan(context.Context, uuid.UUID) error {
	return errInjected
}

// Cascade delete is all-or-nothing: an abort mid-operation leaves the
// loan and all of its repayments untouched.
func TestDeleteLoan_CascadeAtomicity(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	clock := ledger.WithClock(func() time.Time { return testNow })

	eng := ledger.NewEngine(store, logger, clock)
	l := issue(t, eng, 1, "300.00")
	for i := 0; i < 3; i++ {
		_, err := eng.RecordRepayment(ctx, l.ID, amt(t, "50.00"), testNow)
		require.NoError(t, err)
	}

	broken := ledger.NewEngine(&failingStore{Store: store}, logger, clock)
	err := broken.DeleteLoan(ctx, l.ID, true)
	require.ErrorIs(t, err, errInjected)

	// All four records survived the abort.
	_, err = store.LoanByID(ctx, l.ID)
	require.NoError(t, err)
	reps, err := store.RepaymentsForLoanDesc(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, reps, 3)
}

// Two concurrent repayments that together overdraw the loan: exactly
// one commits, the other is rejected with the post-commit balance.
func TestRecordRepayment_ConcurrentRace(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "100.00")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = eng.RecordRepayment(ctx, l.ID, amt(t, "100.00"), testNow)
		}(i)
	}
	wg.Wait()

	var successes, overpayments int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		default:
			var overpay ledger.ErrOverpaymentRejected
			require.ErrorAs(t, err, &overpay)
			assert.Equal(t, "0.00", overpay.Remaining.String())
			overpayments++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, overpayments)

	balance, err := eng.GetBalance(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, balance.Remaining.IsZero(), "remaining is %s", balance.Remaining)
}

// Idempotent read: identical balance views with no intervening mutation.
func TestGetBalance_IdempotentRead(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "750.00")

	_, err := eng.RecordRepayment(ctx, l.ID, amt(t, "250.00"), testNow)
	require.NoError(t, err)

	first, err := eng.GetBalance(ctx, l.ID)
	require.NoError(t, err)
	second, err := eng.GetBalance(ctx, l.ID)
	require.NoError(t, err)

	assert.True(t, first.Remaining.Equal(second.Remaining))
	assert.True(t, first.TotalRepaid.Equal(second.TotalRepaid))
	assert.Equal(t, first.RepaidPercent, second.RepaidPercent)
	assert.Equal(t, 33, first.RepaidPercent)
}

func TestWithinTx_CancelledContextIsRetryable(t *testing.T) {
	eng, _ := newTestEngine(t)
	l := issue(t, eng, 1, "100.00")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.RecordRepayment(cancelled, l.ID, amt(t, "10.00"), testNow)
	var retryable ledger.ErrRetryable
	assert.ErrorAs(t, err, &retryable)
}

// Balance invariant under randomized operation sequences: no sequence
// of issue/repay/edit/delete may ever push total repaid past principal;
// attempted violations are rejected, never silently adjusted.
func TestBalanceInvariant_RandomizedOperations(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(t)
	rng := rand.New(rand.NewSource(1))

	var loanIDs []uuid.UUID
	var repaymentIDs []uuid.UUID

	randAmount := func() money.Amount {
		cents := rng.Int63n(120000) + 1 // up to 1200.00
		a, err := money.Parse(decimalString(cents))
		require.NoError(t, err)
		return a
	}

	for i := 0; i < 500; i++ {
		switch op := rng.Intn(6); {
		case op == 0 || len(loanIDs) == 0:
			l, err := eng.IssueLoan(ctx, rng.Int63n(5)+1, randAmount(), testNow, "generated")
			require.NoError(t, err)
			loanIDs = append(loanIDs, l.ID)
		case op == 1:
			id := loanIDs[rng.Intn(len(loanIDs))]
			receipt, err := eng.RecordRepayment(ctx, id, randAmount(), testNow)
			if err == nil {
				repaymentIDs = append(repaymentIDs, receipt.Repayment.ID)
			}
		case op == 2:
			id := loanIDs[rng.Intn(len(loanIDs))]
			p := randAmount()
			_, _ = eng.EditLoan(ctx, id, ledger.EditLoanParams{Principal: &p})
		case op == 3 && len(repaymentIDs) > 0:
			id := repaymentIDs[rng.Intn(len(repaymentIDs))]
			a := randAmount()
			_, _ = eng.EditRepayment(ctx, id, ledger.EditRepaymentParams{Amount: &a})
		case op == 4 && len(repaymentIDs) > 0:
			idx := rng.Intn(len(repaymentIDs))
			if err := eng.DeleteRepayment(ctx, repaymentIDs[idx]); err == nil {
				repaymentIDs = append(repaymentIDs[:idx], repaymentIDs[idx+1:]...)
			}
		default:
			id := loanIDs[rng.Intn(len(loanIDs))]
			status := loan.StatusActive
			if rng.Intn(2) == 0 {
				status = loan.StatusInactive
			}
			_, _ = eng.SetLoanStatus(ctx, id, status)
		}

		// Invariant check over every surviving loan. ComputeBalance
		// fails if repayments exceed principal.
		for _, id := range loanIDs {
			l, err := store.LoanByID(ctx, id)
			if err != nil {
				continue
			}
			reps, err := store.RepaymentsForLoanDesc(ctx, id)
			require.NoError(t, err)
			balance, err := ledger.ComputeBalance(l, reps)
			require.NoError(t, err, "invariant violated on loan %s", id)
			assert.False(t, balance.TotalRepaid.GreaterThan(l.Principal))
		}
	}
}

func decimalString(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
