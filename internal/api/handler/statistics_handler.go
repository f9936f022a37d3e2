package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// StatisticsHandler serves ledger-wide aggregate figures
type StatisticsHandler struct {
	queries LedgerQueries
	logger  *slog.Logger
}

// NewStatisticsHandler creates a new statistics handler
func NewStatisticsHandler(logger *slog.Logger, queries LedgerQueries) *StatisticsHandler {
	return &StatisticsHandler{
		queries: queries,
		logger:  logger,
	}
}

// Get returns a point-in-time aggregate snapshot over the whole ledger
func (h *StatisticsHandler) Get(c *gin.Context) {
	stats, err := h.queries.Statistics(c.Request.Context())
	if err != nil {
		respondLedgerError(c, h.logger, err)
		return
	}
	RespondOK(c, StatisticsResponse{
		TotalLoaned:      stats.TotalLoaned.String(),
		TotalRepaid:      stats.TotalRepaid.String(),
		TotalOutstanding: stats.TotalOutstanding.String(),
		LoanCount:        stats.LoanCount,
		RepaymentCount:   stats.RepaymentCount,
	})
}
