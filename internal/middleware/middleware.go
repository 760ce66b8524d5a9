package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"taskd/pkg/logger"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID reuses the caller's X-Request-ID or assigns a new uuid, echoes
// it back and attaches a request-scoped logger to the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		c.Set("request_id", id)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog writes one structured line per request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ctx := c.Request.Context()
		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			logger.Error(ctx, "Request failed", args...)
		case status >= 400:
			logger.Warn(ctx, "Request rejected", args...)
		default:
			logger.Debug(ctx, "Request served", args...)
		}
	}
}

// CORS allows browser clients, including MCP inspectors, from any origin.
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			RequestIDHeader, "Mcp-Session-Id", "Mcp-Protocol-Version", "Last-Event-ID",
		},
		ExposeHeaders: []string{"Content-Length", RequestIDHeader, "Mcp-Session-Id"},
		MaxAge:        12 * time.Hour,
	})
}
