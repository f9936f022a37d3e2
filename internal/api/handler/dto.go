package handler

import (
	"time"

	"github.com/employee-loan-ledger/internal/domain/loan"
	"github.com/employee-loan-ledger/internal/domain/repayment"
	"github.com/employee-loan-ledger/internal/ledger"
)

// dateLayout is the wire format for calendar dates.
const dateLayout = "2006-01-02"

// IssueLoanRequest represents a request to issue a new loan
type IssueLoanRequest struct {
	EmployeeID int64  `json:"employee_id" binding:"required,gt=0"`
	Principal  string `json:"principal" binding:"required"`
	IssueDate  string `json:"issue_date" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

// EditLoanRequest represents a partial update to a loan. Absent fields
// are left unchanged.
type EditLoanRequest struct {
	Principal *string `json:"principal,omitempty"`
	Reason    *string `json:"reason,omitempty"`
	IssueDate *string `json:"issue_date,omitempty"`
}

// SetLoanStatusRequest represents a request to change a loan's status
type SetLoanStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active inactive"`
}

// RecordRepaymentRequest represents a request to record a repayment
type RecordRepaymentRequest struct {
	LoanID    string `json:"loan_id" binding:"required,uuid"`
	Amount    string `json:"amount" binding:"required"`
	RepayDate string `json:"repay_date" binding:"required"`
}

// EditRepaymentRequest represents a partial update to a repayment
type EditRepaymentRequest struct {
	Amount    *string `json:"amount,omitempty"`
	RepayDate *string `json:"repay_date,omitempty"`
}

// LoanResponse represents a loan in API responses
type LoanResponse struct {
	ID         string `json:"id"`
	EmployeeID int64  `json:"employee_id"`
	Principal  string `json:"principal"`
	IssueDate  string `json:"issue_date"`
	Reason     string `json:"reason"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// LoanWithBalanceResponse represents a loan together with its derived
// balance, as returned by the single-loan read.
type LoanWithBalanceResponse struct {
	Loan    LoanResponse    `json:"loan"`
	Balance BalanceResponse `json:"balance"`
}

// LoanListResponse represents a list of loans in API responses
type LoanListResponse struct {
	Loans []LoanResponse `json:"loans"`
}

// BalanceResponse represents a loan's derived balance in API responses
type BalanceResponse struct {
	LoanID        string `json:"loan_id"`
	Principal     string `json:"principal"`
	TotalRepaid   string `json:"total_repaid"`
	Remaining     string `json:"remaining"`
	RepaidPercent int    `json:"repaid_percent"`
}

// RepaymentResponse represents a repayment in API responses
type RepaymentResponse struct {
	ID         string `json:"id"`
	LoanID     string `json:"loan_id"`
	EmployeeID int64  `json:"employee_id"`
	Amount     string `json:"amount"`
	RepayDate  string `json:"repay_date"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// RepaymentListResponse represents a list of repayments in API responses
type RepaymentListResponse struct {
	Repayments []RepaymentResponse `json:"repayments"`
}

// ReceiptResponse represents the result of recording a repayment: the
// persisted record plus the loan's new remaining balance.
type ReceiptResponse struct {
	Repayment RepaymentResponse `json:"repayment"`
	Remaining string            `json:"remaining"`
}

// OutstandingResponse represents an employee's total outstanding debt
// across their active loans.
type OutstandingResponse struct {
	EmployeeID       int64  `json:"employee_id"`
	TotalOutstanding string `json:"total_outstanding"`
}

// StatisticsResponse represents ledger-wide aggregate figures
type StatisticsResponse struct {
	TotalLoaned      string `json:"total_loaned"`
	TotalRepaid      string `json:"total_repaid"`
	TotalOutstanding string `json:"total_outstanding"`
	LoanCount        int64  `json:"loan_count"`
	RepaymentCount   int64  `json:"repayment_count"`
}

func mapLoanToResponse(l *loan.Loan) LoanResponse {
	return LoanResponse{
		ID:         l.ID.String(),
		EmployeeID: l.EmployeeID,
		Principal:  l.Principal.String(),
		IssueDate:  l.IssueDate.Format(dateLayout),
		Reason:     l.Reason,
		Status:     string(l.Status),
		CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  l.UpdatedAt.Format(time.RFC3339),
	}
}

func mapLoansToResponse(loans []*loan.Loan) LoanListResponse {
	out := LoanListResponse{Loans: make([]LoanResponse, 0, len(loans))}
	for _, l := range loans {
		out.Loans = append(out.Loans, mapLoanToResponse(l))
	}
	return out
}

func mapBalanceToResponse(b *ledger.LoanBalance) BalanceResponse {
	return BalanceResponse{
		LoanID:        b.LoanID.String(),
		Principal:     b.Principal.String(),
		TotalRepaid:   b.TotalRepaid.String(),
		Remaining:     b.Remaining.String(),
		RepaidPercent: b.RepaidPercent,
	}
}

func mapRepaymentToResponse(r *repayment.Repayment) RepaymentResponse {
	return RepaymentResponse{
		ID:         r.ID.String(),
		LoanID:     r.LoanID.String(),
		EmployeeID: r.EmployeeID,
		Amount:     r.Amount.String(),
		RepayDate:  r.RepayDate.Format(dateLayout),
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
}

func mapRepaymentsToResponse(reps []*repayment.Repayment) RepaymentListResponse {
	out := RepaymentListResponse{Repayments: make([]RepaymentResponse, 0, len(reps))}
	for _, r := range reps {
		out.Repayments = append(out.Repayments, mapRepaymentToResponse(r))
	}
	return out
}
