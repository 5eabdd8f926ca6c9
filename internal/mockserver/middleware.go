package mockserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oremus-labs/kronos-go/internal/logutil"
	"github.com/oremus-labs/kronos-go/internal/metrics"
)

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		requestID, _ := c.Get("requestID")
		logutil.Debug("mock request", map[string]interface{}{
			"method":     method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": requestID,
		})
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Set("start", time.Now())
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		metrics.ObserveMockRequest(c.Request.Method, path, c.Writer.Status())
	}
}

func faultMiddleware(faults *Faults) gin.HandlerFunc {
	return func(c *gin.Context) {
		if status := faults.take(c.Request.URL.Path); status != 0 {
			c.AbortWithStatusJSON(status, gin.H{"@success": false, "@errors": []string{http.StatusText(status)}})
			return
		}
		c.Next()
	}
}
