package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/envproxy/internal/observability"
)

// Metrics returns a middleware that records ingress request metrics.
// Requests that matched no service are labelled "unmatched".
func Metrics(metrics *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		method := c.Request.Method
		start := time.Now()
		metrics.IncrementActiveRequests(method)
		defer metrics.DecrementActiveRequests(method)

		c.Next()

		metrics.RecordRequest(method, GetService(c), c.Writer.Status(), time.Since(start), int64(responseSize(c)))
	}
}
