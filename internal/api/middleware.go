package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/developer-mesh/semcache/pkg/observability"
)

// requestIDHeader carries the per-request correlation ID
const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a UUID unless the caller supplied one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs one line per completed request.
func AccessLog(logger observability.Logger) gin.HandlerFunc {
	log := logger.WithPrefix("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("Request completed", map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  c.GetString("request_id"),
		})
	}
}
