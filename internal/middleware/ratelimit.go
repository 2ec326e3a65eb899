package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/envproxy/internal/observability"
)

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond int
	// Burst is the bucket size. It defaults to RequestsPerSecond.
	Burst int
	// Logger for rate limit events.
	Logger observability.Logger
	// SkipPaths are never limited.
	SkipPaths []string
}

// RateLimit returns a middleware that enforces a process-wide token
// bucket and rejects excess requests with 429.
func RateLimit(config RateLimitConfig) gin.HandlerFunc {
	return RateLimitWithLimiter(newLimiter(config), config)
}

// RateLimitWithLimiter is RateLimit with a caller supplied limiter.
func RateLimitWithLimiter(limiter *rate.Limiter, config RateLimitConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = observability.NopLogger()
	}

	skipPaths := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}
	limit := strconv.Itoa(limiter.Burst())

	return func(c *gin.Context) {
		if skipPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", limit)

		reservation := limiter.Reserve()
		if reservation.OK() && reservation.Delay() == 0 {
			c.Next()
			return
		}

		retryAfter := 1
		if reservation.OK() {
			retryAfter = int(math.Ceil(reservation.Delay().Seconds()))
			reservation.Cancel()
		}

		config.Logger.WithContext(c.Request.Context()).Debug("rate limit exceeded",
			observability.String("path", c.Request.URL.Path),
			observability.String("clientIP", c.ClientIP()),
		)

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many requests",
			"message":     "rate limit exceeded",
			"retry_after": retryAfter,
		})
	}
}

func newLimiter(config RateLimitConfig) *rate.Limiter {
	burst := config.Burst
	if burst <= 0 {
		burst = config.RequestsPerSecond
	}
	if config.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
}
