package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unireg/unireg-api/internal/service"
)

// Metrics records request duration and count per route template. Unmatched
// requests fall back to the raw URL path so 404 traffic is still visible.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
