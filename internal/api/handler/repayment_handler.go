package handler

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/employee-loan-ledger/internal/domain/money"
	"github.com/employee-loan-ledger/internal/ledger"
)

// RepaymentHandler handles HTTP requests for repayment operations
type RepaymentHandler struct {
	engine  LedgerEngine
	queries LedgerQueries
	logger  *slog.Logger
}

// NewRepaymentHandler creates a new repayment handler
func NewRepaymentHandler(logger *slog.Logger, engine LedgerEngine, queries LedgerQueries) *RepaymentHandler {
	return &RepaymentHandler{
		engine:  engine,
		queries: queries,
		logger:  logger,
	}
}

// Create records a repayment against a loan and returns a receipt with
// the loan's new remaining balance
func (h *RepaymentHandler) Create(c *gin.Context) {
	var req RecordRepaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	loanID, err := uuid.Parse(req.LoanID)
	if err != nil {
		RespondBadRequest(c, "Invalid loan ID")
		return
	}
	amount, err := money.ParsePositive(req.Amount)
	if err != nil {
		RespondUnprocessable(c, err.Error())
		return
	}
	repayDate, err := time.Parse(dateLayout, req.RepayDate)
	if err != nil {
		RespondUnprocessable(c, "Invalid repay_date, expected YYYY-MM-DD: "+req.RepayDate)
		return
	}

	receipt, err := h.engine.RecordRepayment(c.Request.Context(), loanID, amount, repayDate)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondCreated(c, ReceiptResponse{
		Repayment: mapRepaymentToResponse(receipt.Repayment),
		Remaining: receipt.Remaining.String(),
	})
}

// GetByID retrieves a repayment by its ID, returning 404 if not found
func (h *RepaymentHandler) GetByID(c *gin.Context) {
	id, ok := h.repaymentIDParam(c)
	if !ok {
		return
	}
	rep, err := h.queries.RepaymentByID(c.Request.Context(), id)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapRepaymentToResponse(rep))
}

// ListByEmployee returns every repayment recorded for an employee
// across all their loans
func (h *RepaymentHandler) ListByEmployee(c *gin.Context) {
	raw := c.Param("employeeId")
	employeeID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || employeeID <= 0 {
		h.logger.Error("Invalid employee ID", "employee_id", raw)
		RespondBadRequest(c, "Invalid employee ID")
		return
	}
	reps, err := h.queries.RepaymentsForEmployee(c.Request.Context(), employeeID)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapRepaymentsToResponse(reps))
}

// Update handles a partial edit of a repayment's amount or date
func (h *RepaymentHandler) Update(c *gin.Context) {
	id, ok := h.repaymentIDParam(c)
	if !ok {
		return
	}

	var req EditRepaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Amount == nil && req.RepayDate == nil {
		RespondBadRequest(c, "At least one of amount or repay_date must be provided")
		return
	}

	var params ledger.EditRepaymentParams
	if req.Amount != nil {
		amount, err := money.Parse(*req.Amount)
		if err != nil {
			RespondUnprocessable(c, err.Error())
			return
		}
		params.Amount = &amount
	}
	if req.RepayDate != nil {
		repayDate, err := time.Parse(dateLayout, *req.RepayDate)
		if err != nil {
			RespondUnprocessable(c, "Invalid repay_date, expected YYYY-MM-DD: "+*req.RepayDate)
			return
		}
		params.RepayDate = &repayDate
	}

	rep, err := h.engine.EditRepayment(c.Request.Context(), id, params)
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, mapRepaymentToResponse(rep))
}

// Delete removes a repayment, restoring its contribution to the loan's
// remaining balance
func (h *RepaymentHandler) Delete(c *gin.Context) {
	id, ok := h.repaymentIDParam(c)
	if !ok {
		return
	}
	if err := h.engine.DeleteRepayment(c.Request.Context(), id); err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondNoContent(c)
}

func (h *RepaymentHandler) repaymentIDParam(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Error("Invalid repayment ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid repayment ID")
		return uuid.UUID{}, false
	}
	return id, true
}
