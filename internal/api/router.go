package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/employee-loan-ledger/internal/api/handler"
	"github.com/employee-loan-ledger/internal/api/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	loanHandler *handler.LoanHandler,
	repaymentHandler *handler.RepaymentHandler,
	statisticsHandler *handler.StatisticsHandler,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		// Loan operations
		loans := v1.Group("/loans")
		{
			loans.POST("", loanHandler.Create)
			loans.GET("", loanHandler.List)
			loans.GET("/active", loanHandler.ListActive)
			loans.GET("/:id", loanHandler.GetByID)
			loans.GET("/:id/balance", loanHandler.GetBalance)
			loans.GET("/:id/repayments", loanHandler.ListRepayments)
			loans.GET("/employee/:employeeId", loanHandler.ListByEmployee)
			loans.GET("/employee/:employeeId/active", loanHandler.ListActiveByEmployee)
			loans.GET("/employee/:employeeId/outstanding", loanHandler.GetOutstandingByEmployee)
			loans.PUT("/:id", loanHandler.Update)
			loans.PUT("/:id/status", loanHandler.SetStatus)
			loans.DELETE("/:id", loanHandler.Delete)
		}

		// Repayment operations
		repayments := v1.Group("/repayments")
		{
			repayments.POST("", repaymentHandler.Create)
			repayments.GET("/:id", repaymentHandler.GetByID)
			repayments.GET("/employee/:employeeId", repaymentHandler.ListByEmployee)
			repayments.PUT("/:id", repaymentHandler.Update)
			repayments.DELETE("/:id", repaymentHandler.Delete)
		}

		// Ledger-wide aggregates
		v1.GET("/statistics", statisticsHandler.Get)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
