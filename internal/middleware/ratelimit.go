package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ProjectIDKey is the gin context key set by the project API-key auth
// middleware once a request's X-API-Key has been resolved.
const ProjectIDKey = "projectID"

// ProjectRateLimiter enforces a per-project token bucket, rekeyed from a
// bucket per request to one bucket per project so a single noisy tenant
// can't starve another's quota. The limit/window pair comes from instance
// settings and is refreshed on every Allow call so an admin edit to
// rate_limit_max takes effect without a restart.
type ProjectRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	cleanup  time.Duration

	// settings returns the current instance-wide rate limit (max requests
	// per window) and window duration. Reading it on every request keeps
	// admin-edited limits live.
	settings func() (max int, window time.Duration)
}

// NewProjectRateLimiter creates a rate limiter keyed by project ID. settings
// should return the current rate_limit_max/rate_limit_window_seconds from
// instance settings.
func NewProjectRateLimiter(settings func() (max int, window time.Duration)) *ProjectRateLimiter {
	rl := &ProjectRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		cleanup:  5 * time.Minute,
		settings: settings,
	}
	go rl.cleanupRoutine()
	return rl
}

func (rl *ProjectRateLimiter) getLimiter(projectID string) *rate.Limiter {
	max, window := rl.settings()
	limit := rate.Limit(float64(max) / window.Seconds())

	rl.mu.RLock()
	limiter, exists := rl.limiters[projectID]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		limiter = rate.NewLimiter(limit, max)
		rl.limiters[projectID] = limiter
		rl.mu.Unlock()
		return limiter
	}

	// Settings may have changed since the limiter was created; keep it in
	// sync rather than holding a stale limit forever.
	if limiter.Limit() != limit || limiter.Burst() != max {
		limiter.SetLimit(limit)
		limiter.SetBurst(max)
	}

	return limiter
}

func (rl *ProjectRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		if len(rl.limiters) > 10000 {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		rl.mu.Unlock()
	}
}

// Middleware rate limits requests by project ID. It must run after the
// project API-key auth middleware has set ProjectIDKey in the context; if
// no project is present (e.g. unauthenticated routes) it no-ops.
func (rl *ProjectRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		projectIDVal, exists := c.Get(ProjectIDKey)
		if !exists {
			c.Next()
			return
		}

		projectID, ok := projectIDVal.(string)
		if !ok || projectID == "" {
			c.Next()
			return
		}

		limiter := rl.getLimiter(projectID)
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"message": "too many requests for this project, please try again later",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// IPRateLimiter implements a plain per-IP token bucket, used ahead of
// authentication on endpoints like login and setup where no project is
// yet resolved.
type IPRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	cleanup  time.Duration
}

// NewIPRateLimiter creates a rate limiter keyed by client IP.
func NewIPRateLimiter(requestsPerSecond float64, burst int) *IPRateLimiter {
	rl := &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		cleanup:  5 * time.Minute,
	}
	go rl.cleanupRoutine()
	return rl
}

func (rl *IPRateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
		rl.mu.Unlock()
	}

	return limiter
}

func (rl *IPRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(rl.cleanup)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		if len(rl.limiters) > 10000 {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		rl.mu.Unlock()
	}
}

// Middleware rate limits requests by client IP.
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter := rl.getLimiter(c.ClientIP())
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// StrictMiddleware applies a tighter per-request-per-minute limit, meant
// for sensitive endpoints (login, password reset) layered on top of the
// general IP limiter.
func (rl *IPRateLimiter) StrictMiddleware(requestsPerMinute int) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate limit exceeded",
				"message": "too many requests to this endpoint, please try again later",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
