package httpmw

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/logger"
)

// requestIDHeader carries a caller-supplied request id; the effective id
// is echoed back in the same header.
const requestIDHeader = "X-Request-ID"

// scrapePaths are excluded from access logging and tracing. Load
// balancers and Prometheus hit them continuously.
var scrapePaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// RequestLogger tags each request with an id, stores it in the request
// context for downstream loggers, and writes one access log entry after
// the handler completes: 5xx at error, 4xx at info, the rest at debug.
func RequestLogger(log *logger.Logger, serverName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if _, skip := scrapePaths[path]; skip {
			c.Next()
			return
		}

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(requestIDHeader, requestID)
		ctx := context.WithValue(c.Request.Context(), logger.RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		size := c.Writer.Size()
		if size < 0 {
			size = 0
		}

		fields := []zap.Field{
			zap.String("server", serverName),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("request_id", requestID),
			zap.Int("status", status),
			zap.Int64("duration_ms", latency.Milliseconds()),
			zap.Int("bytes", size),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			log.Error("http", fields...)
		case status >= 400:
			log.Info("http", fields...)
		default:
			log.Debug("http", fields...)
		}
	}
}
