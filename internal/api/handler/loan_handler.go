package handler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/ledger"
)

// LoanHandler handles HTTP requests for loan operations
type LoanHandler struct {
	engine  LedgerEngine
	queries LedgerQueries
	logger  *slog.Logger
}

// NewLoanHandler creates a new loan handler
func NewLoanHandler(logger *slog.Logger, engine LedgerEngine, queries LedgerQueries) *LoanHandler {
	return &LoanHandler{
		engine:  engine,
		queries: queries,
		logger:  logger,
	}
}

// Create handles issuing a new loan
func (h *LoanHandler) Create(c *gin.Context) {
	var req IssueLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	principal, err := money.ParsePositive(req.Principal)
	if err != nil {
		RespondUnprocessable(c, err.Error())
		return
	}
	issueDate, err := time.Parse(dateLayout, req.IssueDate)
	if err != nil {
		RespondUnprocessable(c, "Invalid issue_date, expected YYYY-MM-DD: "+req.IssueDate)
		return
	}

	l, err := h.engine.IssueLoan(c.Request.Context(), req.EmployeeID, principal, issueDate, req.Reason)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondCreated(c, mapLoanToResponse(l))
}

// List returns every loan in the ledger
func (h *LoanHandler) List(c *gin.Context) {
	loans, err := h.queries.AllLoans(c.Request.Context())
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoansToResponse(loans))
}

// ListActive returns every loan whose status is active
func (h *LoanHandler) ListActive(c *gin.Context) {
	loans, err := h.queries.ActiveLoans(c.Request.Context())
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoansToResponse(loans))
}

// GetByID retrieves a loan by its ID together with its recomputed
// balance, returning 404 if not found
func (h *LoanHandler) GetByID(c *gin.Context) {
	id, ok := h.loanIDParam(c)
	if !ok {
		return
	}
	l, balance, err := h.queries.LoanWithBalance(c.Request.Context(), id)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, LoanWithBalanceResponse{
		Loan:    mapLoanToResponse(l),
		Balance: mapBalanceToResponse(balance),
	})
}

// GetBalance returns the loan's derived balance, read under the same
// lock as mutations
func (h *LoanHandler) GetBalance(c *gin.Context) {
	id, ok := h.loanIDParam(c)
	if !ok {
		return
	}
	balance, err := h.engine.GetBalance(c.Request.Context(), id)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapBalanceToResponse(balance))
}

// ListRepayments returns a loan's repayment history, newest first
func (h *LoanHandler) ListRepayments(c *gin.Context) {
	id, ok := h.loanIDParam(c)
	if !ok {
		return
	}
	reps, err := h.queries.RepaymentHistory(c.Request.Context(), id)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapRepaymentsToResponse(reps))
}

// ListByEmployee returns all loans issued to an employee
func (h *LoanHandler) ListByEmployee(c *gin.Context) {
	employeeID, ok := h.employeeIDParam(c)
	if !ok {
		return
	}
	loans, err := h.queries.LoansForEmployee(c.Request.Context(), employeeID)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoansToResponse(loans))
}

// ListActiveByEmployee returns an employee's active loans
func (h *LoanHandler) ListActiveByEmployee(c *gin.Context) {
	employeeID, ok := h.employeeIDParam(c)
	if !ok {
		return
	}
	loans, err := h.queries.ActiveLoansForEmployee(c.Request.Context(), employeeID)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoansToResponse(loans))
}

// GetOutstandingByEmployee returns the employee's total remaining debt
// across their active loans
func (h *LoanHandler) GetOutstandingByEmployee(c *gin.Context) {
	employeeID, ok := h.employeeIDParam(c)
	if !ok {
		return
	}
	total, err := h.queries.TotalOutstandingForEmployee(c.Request.Context(), employeeID)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, OutstandingResponse{
		EmployeeID:       employeeID,
		TotalOutstanding: total.String(),
	})
}

// Update handles a partial edit of a loan's principal, reason or issue date
func (h *LoanHandler) Update(c *gin.Context) {
	id, ok := h.loanIDParam(c)
	if !ok {
		return
	}

	var req EditLoanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Principal == nil && req.Reason == nil && req.IssueDate == nil {
		RespondBadRequest(c, "At least one of principal, reason or issue_date must be provided")
		return
	}

	var params ledger.EditLoanParams
	if req.Principal != nil {
		principal, err := money.Parse(*req.Principal)
		if err != nil {
			RespondUnprocessable(c, err.Error())
			return
		}
		params.Principal = &principal
	}
	params.Reason = req.Reason
	if req.IssueDate != nil {
		issueDate, err := time.Parse(dateLayout, *req.IssueDate)
		if err != nil {
			RespondUnprocessable(c, "Invalid issue_date, expected YYYY-MM-DD: "+*req.IssueDate)
			return
		}
		params.IssueDate = &issueDate
	}

	l, err := h.engine.EditLoan(c.Request.Context(), id, params)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoanToResponse(l))
}

// SetStatus flips a loan between active and inactive
func (h *LoanHandler) SetStatus(c *gin.Context) {
	id, ok := h.loanIDParam(c)
	if !ok {
		return
	}

	var req SetLoanStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	status, err := loan.ParseStatus(req.Status)
	if err != nil {
		RespondUnprocessable(c, err.Error())
		return
	}

	l, err := h.engine.SetLoanStatus(c.Request.Context(), id, status)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapLoanToResponse(l))
}

// Delete removes a loan. With ?cascade=true its repayments are removed
// too; without it the delete is refused if repayments exist.
func (h *LoanHandler) Delete(c *gin.Context) {
	id, ok := h.loanIDParam(c)
	if !ok {
		return
	}

	cascade := false
	if raw, exists := c.GetQuery("cascade"); exists {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			RespondBadRequest(c, "Invalid cascade parameter: "+raw)
			return
		}
		cascade = parsed
	}

	if err := h.engine.DeleteLoan(c.Request.Context(), id, cascade); err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondNoContent(c)
}

func (h *LoanHandler) loanIDParam(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid loan ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid loan ID")
		return uuid.UUID{}, false
	}
	return id, true
}

func (h *LoanHandler) employeeIDParam(c *gin.Context) (int64, bool) {
	raw := c.Param("employeeId")
	employeeID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || employeeID <= 0 {
		h.logger.Error("Invalid employee ID", "employee_id", raw)
		RespondBadRequest(c, "Invalid employee ID")
		return 0, false
	}
	return employeeID, true
}
