package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/notifications-dashboard-api/internal/models"
)

type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditEntry) error
}

// Audit records the outcome of an operator mutation after the handler ran.
// Failed writes are recorded too; the status column tells them apart.
func Audit(recorder auditRecorder, action string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if recorder == nil {
			c.Next()
			return
		}
		start := time.Now().UTC()
		c.Next()

		entry := &models.AuditEntry{
			Action:    action,
			Status:    c.Writer.Status(),
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
			CreatedAt: start,
		}
		if claims, ok := Claims(c); ok {
			operator := claims.UserID
			entry.OperatorID = &operator
		}
		if id := c.Param("id"); id != "" {
			entry.RecordID = &id
		}
		entry.Details, _ = json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"latency": time.Since(start).Milliseconds(),
		})

		if err := recorder.Record(context.WithoutCancel(c.Request.Context()), entry); err != nil {
			logger.Warn("audit entry not stored",
				zap.String("action", action),
				zap.Int("status", entry.Status),
				zap.Error(err),
			)
		}
	}
}
