package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"fakegpu/internal/logging"
	"fakegpu/internal/metrics"
)

func requestLogger(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info("server.request", "Handled request", map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

func requestMetrics(recorder *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Unmatched routes have no template; fall back to the raw path
		// so 404 probes stay visible without exploding label sets.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		recorder.RecordRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
