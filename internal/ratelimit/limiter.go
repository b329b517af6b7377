package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per operator.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewLimiter allows requestsPerHour per key with bursts of up to burst.
// A non-positive requestsPerHour disables limiting.
func NewLimiter(requestsPerHour, burst int) *Limiter {
	r := rate.Inf
	if requestsPerHour > 0 {
		r = rate.Limit(float64(requestsPerHour) / 3600.0)
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}
	return limiter
}

// Allow consumes one token for key.
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Tokens returns the tokens currently available to key.
func (l *Limiter) Tokens(key string) float64 {
	return l.get(key).Tokens()
}

// retryAfter is how long key has to wait for the next token.
func (l *Limiter) retryAfter(key string) time.Duration {
	if l.rate == rate.Inf {
		return 0
	}
	missing := 1 - l.Tokens(key)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(l.rate) * float64(time.Second))
}

// Middleware rejects requests over the limit with 429. keyFn picks the
// bucket; requests it cannot key fall back to the client IP.
func (l *Limiter) Middleware(keyFn func(*gin.Context) string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := keyFn(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !l.Allow(key) {
			wait := l.retryAfter(key)
			logger.Warn("rate limit exceeded", zap.String("key", key), zap.Duration("retry_after", wait))
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
