package middleware

import "github.com/gin-gonic/gin"

// Keys under which request-scoped values are stored on the gin context.
const (
	// RequestIDKey holds the request id.
	RequestIDKey = "requestID"
	// ServiceKey holds the name of the service that handled the request.
	ServiceKey = "service"
	// EnvironmentKey holds the environment the request was resolved in.
	EnvironmentKey = "environment"
	// SpanKey holds the server span.
	SpanKey = "otel-span"
)

// GetService returns the service that handled the request, or "" when
// no service matched.
func GetService(c *gin.Context) string {
	return c.GetString(ServiceKey)
}

// responseSize returns the number of body bytes written so far.
func responseSize(c *gin.Context) int {
	if size := c.Writer.Size(); size > 0 {
		return size
	}
	return 0
}
