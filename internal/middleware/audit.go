package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/academic-records-api/pkg/middleware/requestid"
)

// Audit logs one entry per ledger write once the handler has answered,
// including rejected writes so denied attempts are traceable.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("audit")
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		fields := []zap.Field{
			zap.String("action", action),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if claims := Claims(c); claims != nil {
			fields = append(fields, zap.String("actor_id", claims.UserID), zap.String("role", string(claims.Role)))
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}

		if c.Writer.Status() >= 400 {
			logger.Warn("ledger write rejected", fields...)
			return
		}
		logger.Info("ledger write", fields...)
	}
}
