// internal/middleware/logging_middleware.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"ffb-control-service/internal/utils"
)

// LoggingMiddleware logs every request with its status and duration. Probe
// paths in quiet are only logged when they fail.
func LoggingMiddleware(logger *utils.ServiceLogger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(quiet))
	for _, path := range quiet {
		skip[path] = true
	}

	return func(c *gin.Context) {
		started := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		if skip[path] && status < 400 {
			return
		}

		logger.WithRequestID(c.GetString("request_id")).LogAPIRequest(
			c.Request.Method,
			path,
			c.Request.UserAgent(),
			c.ClientIP(),
			status,
			time.Since(started),
		)
	}
}
