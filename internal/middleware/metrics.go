package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/notifications-dashboard-api/internal/service"
)

// Metrics records request count and latency per route. Event streams are skipped since
// their duration is the connection lifetime.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		if c.Writer.Header().Get("Content-Type") == "text/event-stream" {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
