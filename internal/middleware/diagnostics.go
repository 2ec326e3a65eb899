package middleware

import (
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/envproxy/internal/config"
	"github.com/vyrodovalexey/envproxy/internal/observability"
)

// Diagnostics returns the per-service diagnostics middleware. After the
// request completes it writes one line according to level:
// Information logs path and status, Debug additionally logs a
// timestamp, every request header except Cookie and the cookies sorted
// by name. Any other level is silent.
func Diagnostics(service string, level config.LogLevel, logger observability.Logger) gin.HandlerFunc {
	level = level.Normalize()
	if logger == nil || (level != config.LogLevelInformation && level != config.LogLevelDebug) {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	logger = logger.With(observability.String("service", service))

	return func(c *gin.Context) {
		c.Next()

		fields := []observability.Field{
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", c.Writer.Status()),
		}
		if level == config.LogLevelDebug {
			fields = append(fields,
				observability.Time("timestamp", time.Now()),
				observability.Strings("headers", headerLines(c)),
				observability.Strings("cookies", cookieLines(c)),
			)
		}
		logger.WithContext(c.Request.Context()).Info("incoming request", fields...)
	}
}

// headerLines lists the request headers as "Name: value", sorted by
// name, without the Cookie header.
func headerLines(c *gin.Context) []string {
	lines := make([]string, 0, len(c.Request.Header))
	for name, values := range c.Request.Header {
		if strings.EqualFold(name, "Cookie") {
			continue
		}
		lines = append(lines, name+": "+strings.Join(values, ", "))
	}
	sort.Strings(lines)
	return lines
}

// cookieLines lists the request cookies as "name: value" sorted by name.
func cookieLines(c *gin.Context) []string {
	cookies := c.Request.Cookies()
	sort.SliceStable(cookies, func(i, j int) bool {
		return cookies[i].Name < cookies[j].Name
	})

	lines := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		lines = append(lines, cookie.Name+": "+cookie.Value)
	}
	return lines
}
