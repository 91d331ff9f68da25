package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/aggregation-backend/internal/pkg/ctxutil"
)

const (
	headerCorrelationID = "X-Correlation-Id"
	headerRequestID     = "X-Request-Id"
)

// AttachCorrelationID propagates the caller's correlation id (or mints one) so
// cycle events published from this request carry it.
func AttachCorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerCorrelationID))
		if id == "" {
			id = strings.TrimSpace(c.GetHeader(headerRequestID))
		}
		if id == "" {
			id = uuid.NewString()
		}
		c.Request = c.Request.WithContext(ctxutil.WithCorrelationID(c.Request.Context(), id))
		c.Set("correlation_id", id)
		c.Writer.Header().Set(headerCorrelationID, id)
		c.Next()
	}
}
