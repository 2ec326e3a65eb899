package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/envproxy/internal/observability"
)

// Recovery returns a middleware that turns panics into a 500 JSON
// response. http.ErrAbortHandler is re-raised so the server drops the
// connection of a response that was already partially sent.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler { //nolint:errorlint // sentinel panic value
				panic(err)
			}

			fields := []observability.Field{
				observability.Any("error", err),
				observability.String("method", c.Request.Method),
				observability.String("path", c.Request.URL.Path),
				observability.String("clientIP", c.ClientIP()),
				observability.String("stack", string(debug.Stack())),
			}
			ctx := c.Request.Context()
			if requestID := observability.RequestIDFromContext(ctx); requestID != "" {
				fields = append(fields, observability.String("requestID", requestID))
			}
			if traceID := observability.TraceIDFromContext(ctx); traceID != "" {
				fields = append(fields, observability.String("traceID", traceID))
			}
			logger.Error("panic recovered", fields...)

			if span := GetSpan(c); span != nil {
				span.RecordError(fmt.Errorf("panic: %v", err))
			}

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal server error",
				"message": "an unexpected error occurred",
			})
		}()

		c.Next()
	}
}
