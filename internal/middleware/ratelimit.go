package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lwald/semgrade/internal/pkg/response"
)

type rateLimiter struct {
	mu       sync.Mutex
	perSec   rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// RateLimit applies a per-client token bucket, keyed by client IP and user.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	limiter := &rateLimiter{
		perSec:   rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
	return limiter.handle
}

func (l *rateLimiter) handle(c *gin.Context) {
	if l.perSec <= 0 {
		c.Next()
		return
	}
	uid := "0"
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			uid = id
		}
	}
	key := strings.Join([]string{c.ClientIP(), uid}, "|")

	l.mu.Lock()
	bucket, ok := l.limiters[key]
	if !ok {
		bucket = rate.NewLimiter(l.perSec, l.burst)
		l.limiters[key] = bucket
	}
	l.mu.Unlock()

	if !bucket.Allow() {
		logutil.GetLogger(c.Request.Context()).Warn("rate limit hit",
			zap.String("ip", c.ClientIP()),
			zap.String("user_id", uid),
			zap.String("path", c.Request.URL.Path),
		)
		response.Error(c, http.StatusTooManyRequests, "too_many_requests", http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	c.Next()
}
