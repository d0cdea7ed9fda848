package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter manages per-client request limiters. Each credential carries
// its own requests-per-minute budget, so limiters are keyed by client and
// built lazily with that client's limit.
type RateLimiter struct {
	limiters   map[string]*rate.Limiter
	mu         sync.RWMutex
	defaultRPM int
}

// NewRateLimiter creates a rate limiter with a fallback requests-per-minute
// budget for unauthenticated callers.
func NewRateLimiter(defaultRPM int) *RateLimiter {
	return &RateLimiter{
		limiters:   make(map[string]*rate.Limiter),
		defaultRPM: defaultRPM,
	}
}

// getLimiter returns the limiter for a key, creating it with the given
// per-minute budget on first use.
func (rl *RateLimiter) getLimiter(key string, rpm int) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	limiter, exists = rl.limiters[key]
	if exists {
		return limiter
	}

	if rpm <= 0 {
		rpm = rl.defaultRPM
	}
	limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm)
	rl.limiters[key] = limiter

	return limiter
}

// RateLimit enforces the per-credential request budget. Unauthenticated
// requests are limited per client IP at the default budget.
func RateLimit(rl *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		rpm := 0

		if identity, ok := GetIdentity(c); ok {
			key = fmt.Sprintf("client:%d", identity.KeyID)
			rpm = identity.RateLimit
		} else {
			key = fmt.Sprintf("ip:%s", c.ClientIP())
		}

		limiter := rl.getLimiter(key, rpm)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
