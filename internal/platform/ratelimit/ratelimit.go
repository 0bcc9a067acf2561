// Package ratelimit adapts the teacher's pkg/middleware/ratelimiter.go
// (per-IP token bucket plus Redis-backed per-action windows) to this
// service's config.Config and redisx.Client shapes.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jutuon/afrodite-backend-sub001/config"
	"github.com/jutuon/afrodite-backend-sub001/internal/platform/redisx"
	"golang.org/x/time/rate"
)

// IPLimiter keeps one token-bucket limiter per client IP.
type IPLimiter struct {
	mu    sync.RWMutex
	ips   map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

func NewIPLimiter(limit rate.Limit, burst int) *IPLimiter {
	return &IPLimiter{ips: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (l *IPLimiter) get(ip string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.ips[ip]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.ips[ip]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.limit, l.burst)
	l.ips[ip] = limiter
	return limiter
}

// Middleware applies the global per-IP token bucket from config.Config;
// it is a no-op when RateLimitEnabled is false.
func Middleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimitEnabled {
		return func(c *gin.Context) { c.Next() }
	}
	limiter := NewIPLimiter(rate.Limit(cfg.RateLimitLimit), cfg.RateLimitBurst)
	return func(c *gin.Context) {
		if !limiter.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// ActionConfig defines a Redis-backed fixed-window limit for one action
// (e.g. Like, Report) keyed by the authenticated account id.
type ActionConfig struct {
	MaxRequests int
	Window      time.Duration
	KeyPrefix   string
}

var (
	LikeActionLimit = ActionConfig{MaxRequests: 60, Window: time.Minute, KeyPrefix: "ratelimit:like"}
	ReportActionLimit = ActionConfig{MaxRequests: 10, Window: time.Hour, KeyPrefix: "ratelimit:report"}
	MessageActionLimit = ActionConfig{MaxRequests: 120, Window: time.Minute, KeyPrefix: "ratelimit:message"}
	DiscoveryActionLimit = ActionConfig{MaxRequests: 30, Window: time.Minute, KeyPrefix: "ratelimit:discovery"}
)

// ActionLimiter enforces a Redis-backed fixed window per authenticated
// account, falling back to client IP for unauthenticated requests.
func ActionLimiter(redisClient *redisx.Client, cfg ActionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, exists := c.Get("internalAccountID")
		if !exists {
			subject = c.ClientIP()
		}
		key := fmt.Sprintf("%s:%v", cfg.KeyPrefix, subject)
		ctx := c.Request.Context()

		countStr, _ := redisClient.Get(ctx, key)
		if countStr == "" {
			_ = redisClient.Set(ctx, key, "1", cfg.Window)
			c.Next()
			return
		}

		count, _ := strconv.Atoi(countStr)
		if count >= cfg.MaxRequests {
			retryAfter := int64(cfg.Window.Seconds())
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": "unavailable", "message": "rate limit exceeded", "retry_after": retryAfter,
			})
			return
		}

		_ = redisClient.Set(ctx, key, strconv.Itoa(count+1), cfg.Window)
		c.Next()
	}
}
