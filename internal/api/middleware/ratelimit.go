package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/DeafHustle/vrs-live-final/pkg/ratelimit"
	"github.com/gin-gonic/gin"
)

// RateLimitConfig holds rate limit configuration
type RateLimitConfig struct {
	Limiter  *ratelimit.RateLimiter
	Capacity int64                     // Maximum number of requests
	KeyFunc  func(*gin.Context) string // Function to extract rate limit key
}

// DefaultKeyFunc uses the authenticated identity if present, otherwise IP address
func DefaultKeyFunc(c *gin.Context) string {
	if identity, exists := c.Get(ContextIdentity); exists {
		return fmt.Sprintf("identity:%v", identity)
	}

	return IPKeyFunc(c)
}

// IPKeyFunc uses only IP address (for public endpoints)
func IPKeyFunc(c *gin.Context) string {
	return fmt.Sprintf("ip:%s", c.ClientIP())
}

// RateLimitMiddleware creates a rate limiting middleware
func RateLimitMiddleware(config RateLimitConfig) gin.HandlerFunc {
	if config.KeyFunc == nil {
		config.KeyFunc = DefaultKeyFunc
	}

	return func(c *gin.Context) {
		key := config.KeyFunc(c)

		if !config.Limiter.Allow(key) {
			c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Second).Unix(), 10))
			c.Header("Retry-After", "1")

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
				"code":  "rate_limited",
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(config.Capacity, 10))

		c.Next()
	}
}
