package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
)

var oneHundred = decimal.NewFromInt(100)

// LoanBalance is the derived view of a loan's repayment state. It is
// computed on every read and never stored.
type LoanBalance struct {
	LoanID        uuid.UUID    `json:"loan_id"`
	Principal     money.Amount `json:"principal"`
	TotalRepaid   money.Amount `json:"total_repaid"`
	Remaining     money.Amount `json:"remaining"`
	RepaidPercent int          `json:"repaid_percent"`
}

// ComputeBalance derives the balance view for a loan from its current
// repayment set. Fails only if the stored state already violates the
// balance invariant.
func ComputeBalance(l *loan.Loan, reps []*repayment.Repayment) (*LoanBalance, error) {
	totalRepaid := repayment.Total(reps)
	remaining, err := l.Principal.Sub(totalRepaid)
	if err != nil {
		return nil, fmt.Errorf("loan %s repayments exceed principal: %w", l.ID, err)
	}

	pct := totalRepaid.Decimal().Div(l.Principal.Decimal()).Mul(oneHundred).Round(0)
	if pct.GreaterThan(oneHundred) {
		pct = oneHundred
	}

	return &LoanBalance{
		LoanID:        l.ID,
		Principal:     l.Principal,
		TotalRepaid:   totalRepaid,
		Remaining:     remaining,
		RepaidPercent: int(pct.IntPart()),
	}, nil
}
