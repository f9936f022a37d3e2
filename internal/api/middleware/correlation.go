package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationIDHeader carries the request correlation ID. It is echoed
// on every response so a caller can tie an HTTP status to the engine
// and relay log lines for the same mutation.
const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationIDKey is the gin context key the ID is stored under.
const CorrelationIDKey = "correlation_id"

// CorrelationID keeps a caller-supplied correlation ID when it is a
// well-formed UUID and mints a fresh one otherwise. Must run before
// the logging and recovery middleware so both always have an ID to
// attach.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(CorrelationIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}

		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationIDHeader, id)

		c.Next()
	}
}

// GetCorrelationID returns the request's correlation ID, or "" when
// the middleware did not run.
func GetCorrelationID(c *gin.Context) string {
	v, _ := c.Get(CorrelationIDKey)
	id, _ := v.(string)
	return id
}
