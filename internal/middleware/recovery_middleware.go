// internal/middleware/recovery_middleware.go
package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "ffb-control-service/internal/errors"
	"ffb-control-service/internal/utils"
)

// RecoveryMiddleware turns a handler panic into a 500 UNKNOWN response. The
// wheel session is untouched; only the request is lost.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		utils.LoggerWithRequestID(logger, c.GetString("request_id")).Error("Handler panicked",
			zap.String("panic", fmt.Sprint(recovered)),
			zap.String("route", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Stack("stacktrace"),
		)

		err := apperrors.New(apperrors.KindUnknown, "handler panicked").
			WithAction("Retry the request; reconnect the wheel if it keeps failing")
		utils.AppErrorResponse(c, "Internal server error", err)
		c.Abort()
	})
}
