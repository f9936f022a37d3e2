package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery converts a panicking handler into a 500 response. The
// ledger reports every business failure as an error value, so a panic
// reaching this point is a programming bug; the stack is logged and
// the caller gets the standard error envelope.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			correlationID := GetCorrelationID(c)

			logger.Error("Panic recovered",
				"error", r,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"correlation_id", correlationID,
				"stack", string(debug.Stack()),
			)

			body := gin.H{
				"error": gin.H{
					"code":    "INTERNAL_SERVER_ERROR",
					"message": "An internal server error occurred",
				},
			}
			if correlationID != "" {
				body["correlation_id"] = correlationID
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, body)
		}()

		c.Next()
	}
}
