// Package memory provides an in-memory ledger.Store. A single mutex
// serializes every transaction, which trivially satisfies the engine's
// isolation requirement; writes are staged on copies and only installed
// on commit, so a failed transaction leaves no trace. Used by tests and
// as a throwaway dev backend.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/event"
	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
	"github.com/employee-loan-ledger/internal/ledger"
)

// Store is a mutex-serialized in-memory implementation of ledger.Store.
type Store struct {
	mu         sync.Mutex
	loans      map[uuid.UUID]loan.Loan
	repayments map[uuid.UUID]repayment.Repayment
	events     []event.Event
}

var _ ledger.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		loans:      make(map[uuid.UUID]loan.Loan),
		repayments: make(map[uuid.UUID]repayment.Repayment),
	}
}

// WithinTx runs fn on a staged copy of the store under the global
// mutex. The copy replaces the live state only if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return ledger.ErrRetryable{Cause: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &storeTx{
		loans:      cloneLoans(s.loans),
		repayments: cloneRepayments(s.repayments),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.loans = tx.loans
	s.repayments = tx.repayments
	s.events = append(s.events, tx.events...)
	return nil
}

// Events returns the committed event log, oldest first.
func (s *Store) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

func cloneLoans(in map[uuid.UUID]loan.Loan) map[uuid.UUID]loan.Loan {
	out := make(map[uuid.UUID]loan.Loan, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneRepayments(in map[uuid.UUID]repayment.Repayment) map[uuid.UUID]repayment.Repayment {
	out := make(map[uuid.UUID]repayment.Repayment, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// storeTx implements ledger.Tx against the staged copies.
type storeTx struct {
	loans      map[uuid.UUID]loan.Loan
	repayments map[uuid.UUID]repayment.Repayment
	events     []event.Event
}

func (t *storeTx) CreateLoan(_ context.Context, l *loan.Loan) error {
	t.loans[l.ID] = *l
	return nil
}

func (t *storeTx) GetLoanForUpdate(_ context.Context, id uuid.UUID) (*loan.Loan, error) {
	l, ok := t.loans[id]
	if !ok {
		return nil, loan.ErrLoanNotFound{LoanID: id}
	}
	return &l, nil
}

func (t *storeTx) UpdateLoan(_ context.Context, l *loan.Loan) error {
	if _, ok := t.loans[l.ID]; !ok {
		return loan.ErrLoanNotFound{LoanID: l.ID}
	}
	t.loans[l.ID] = *l
	return nil
}

func (t *storeTx) DeleteLoan(_ context.Context, id uuid.UUID) error {
	if _, ok := t.loans[id]; !ok {
		return loan.ErrLoanNotFound{LoanID: id}
	}
	delete(t.loans, id)
	return nil
}

func (t *storeTx) CreateRepayment(_ context.Context, r *repayment.Repayment) error {
	t.repayments[r.ID] = *r
	return nil
}

func (t *storeTx) GetRepayment(_ context.Context, id uuid.UUID) (*repayment.Repayment, error) {
	r, ok := t.repayments[id]
	if !ok {
		return nil, repayment.ErrRepaymentNotFound{RepaymentID: id}
	}
	return &r, nil
}

func (t *storeTx) RepaymentsForLoan(_ context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error) {
	var out []*repayment.Repayment
	for id := range t.repayments {
		r := t.repayments[id]
		if r.LoanID == loanID {
			out = append(out, &r)
		}
	}
	return out, nil
}

func (t *storeTx) UpdateRepayment(_ context.Context, r *repayment.Repayment) error {
	if _, ok := t.repayments[r.ID]; !ok {
		return repayment.ErrRepaymentNotFound{RepaymentID: r.ID}
	}
	t.repayments[r.ID] = *r
	return nil
}

func (t *storeTx) DeleteRepayment(_ context.Context, id uuid.UUID) error {
	if _, ok := t.repayments[id]; !ok {
		return repayment.ErrRepaymentNotFound{RepaymentID: id}
	}
	delete(t.repayments, id)
	return nil
}

func (t *storeTx) DeleteRepaymentsForLoan(_ context.Context, loanID uuid.UUID) (int64, error) {
	var deleted int64
	for id, r := range t.repayments {
		if r.LoanID == loanID {
			delete(t.repayments, id)
			deleted++
		}
	}
	return deleted, nil
}

func (t *storeTx) AppendEvent(_ context.Context, evt *event.Event) error {
	t.events = append(t.events, *evt)
	return nil
}

// Reader side

func (s *Store) LoanByID(_ context.Context, id uuid.UUID) (*loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loans[id]
	if !ok {
		return nil, loan.ErrLoanNotFound{LoanID: id}
	}
	return &l, nil
}

func (s *Store) LoansForEmployee(_ context.Context, employeeID int64, onlyActive bool) ([]*loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*loan.Loan
	for id := range s.loans {
		l := s.loans[id]
		if l.EmployeeID != employeeID {
			continue
		}
		if onlyActive && !l.IsActive() {
			continue
		}
		out = append(out, &l)
	}
	sortLoans(out)
	return out, nil
}

func (s *Store) AllLoans(_ context.Context, onlyActive bool) ([]*loan.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*loan.Loan
	for id := range s.loans {
		l := s.loans[id]
		if onlyActive && !l.IsActive() {
			continue
		}
		out = append(out, &l)
	}
	sortLoans(out)
	return out, nil
}

func (s *Store) RepaymentByID(_ context.Context, id uuid.UUID) (*repayment.Repayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repayments[id]
	if !ok {
		return nil, repayment.ErrRepaymentNotFound{RepaymentID: id}
	}
	return &r, nil
}

func (s *Store) RepaymentsForLoanDesc(_ context.Context, loanID uuid.UUID) ([]*repayment.Repayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repayment.Repayment
	for id := range s.repayments {
		r := s.repayments[id]
		if r.LoanID == loanID {
			out = append(out, &r)
		}
	}
	sortRepaymentsDesc(out)
	return out, nil
}

func (s *Store) RepaymentsForEmployee(_ context.Context, employeeID int64) ([]*repayment.Repayment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repayment.Repayment
	for id := range s.repayments {
		r := s.repayments[id]
		if r.EmployeeID == employeeID {
			out = append(out, &r)
		}
	}
	sortRepaymentsDesc(out)
	return out, nil
}

func (s *Store) AggregateTotals(_ context.Context) (ledger.AggregateTotals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totals := ledger.AggregateTotals{
		TotalLoaned: money.Zero(),
		TotalRepaid: money.Zero(),
	}
	for _, l := range s.loans {
		totals.TotalLoaned = totals.TotalLoaned.Add(l.Principal)
		totals.LoanCount++
	}
	for _, r := range s.repayments {
		totals.TotalRepaid = totals.TotalRepaid.Add(r.Amount)
		totals.RepaymentCount++
	}
	return totals, nil
}

func sortLoans(loans []*loan.Loan) {
	sort.Slice(loans, func(i, j int) bool {
		if !loans[i].CreatedAt.Equal(loans[j].CreatedAt) {
			return loans[i].CreatedAt.Before(loans[j].CreatedAt)
		}
		return loans[i].ID.String() < loans[j].ID.String()
	})
}

func sortRepaymentsDesc(reps []*repayment.Repayment) {
	sort.Slice(reps, func(i, j int) bool {
		if !reps[i].RepayDate.Equal(reps[j].RepayDate) {
			return reps[i].RepayDate.After(reps[j].RepayDate)
		}
		return reps[i].CreatedAt.After(reps[j].CreatedAt)
	})
}
