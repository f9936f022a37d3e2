package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/domain/repayment"
	"github.com/employee-loan-ledger/internal/ledger"
)

// respondLedgerError translates ledger and domain errors into HTTP
// responses. Missing resources map to 404, rejected values to 422,
// state conflicts to 409 and transient store failures to 503; anything
// unrecognized is logged and reported as a 500.
func respondLedgerError(c *gin.Context, logger *slog.Logger, err error) {
	var (
		loanNotFound      loan.ErrLoanNotFound
		repaymentNotFound repayment.ErrRepaymentNotFound
		overpayment       ledger.ErrOverpaymentRejected
		balanceViolation  ledger.ErrBalanceViolation
		loanInactive      ledger.ErrLoanInactive
		hasDependents     ledger.ErrHasDependents
		retryable         ledger.ErrRetryable
	)

	switch {
	case errors.As(err, &loanNotFound):
		RespondNotFound(c, "Loan not found")
	case errors.As(err, &repaymentNotFound):
		RespondNotFound(c, "Repayment not found")
	case errors.Is(err, money.ErrInvalidAmount),
		errors.Is(err, loan.ErrEmptyReason),
		errors.Is(err, loan.ErrFutureIssueDate),
		errors.Is(err, loan.ErrInvalidStatus),
		errors.Is(err, repayment.ErrFutureRepayDate),
		errors.As(err, &overpayment),
		errors.As(err, &balanceViolation):
		RespondUnprocessable(c, err.Error())
	case errors.As(err, &loanInactive),
		errors.As(err, &hasDependents):
		RespondConflict(c, err.Error())
	case errors.As(err, &retryable):
		logger.Warn("Transient store failure", "error", err)
		RespondServiceUnavailable(c, "Temporary storage contention, please retry")
	default:
		logger.Error("Unhandled ledger error", "error", err)
		RespondInternalError(c)
	}
}
