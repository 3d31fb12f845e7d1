// Dashboard idle-session timeout, layered on top of the JWT auth in
// internal/auth. State is in-memory (single-server); the Redis-backed
// refresh token allowlist in internal/auth is the source of truth for
// revocation, this only times out a session that's gone quiet.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// userIDContextKey matches auth.UserIDKey's string value. middleware
// cannot import internal/auth (auth already imports middleware), so the
// key is duplicated here by value rather than by reference.
const userIDContextKey = "userID"

// SessionManager tracks last-activity time per authenticated user.
type SessionManager struct {
	lastActivity    map[string]time.Time
	mu              sync.RWMutex
	idleTimeout     time.Duration
	cleanupInterval time.Duration
}

// NewSessionManager builds a SessionManager with the given idle timeout.
// A zero timeout disables idle enforcement entirely.
func NewSessionManager(idleTimeout time.Duration) *SessionManager {
	sm := &SessionManager{
		lastActivity:    make(map[string]time.Time),
		idleTimeout:     idleTimeout,
		cleanupInterval: 5 * time.Minute,
	}
	go sm.cleanupRoutine()
	return sm
}

func (sm *SessionManager) cleanupRoutine() {
	ticker := time.NewTicker(sm.cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		sm.mu.Lock()
		now := time.Now()
		for userID, lastActive := range sm.lastActivity {
			if now.Sub(lastActive) > sm.idleTimeout {
				delete(sm.lastActivity, userID)
			}
		}
		sm.mu.Unlock()
	}
}

// IdleTimeoutMiddleware rejects requests from a user whose last
// authenticated request was more than idleTimeout ago, then refreshes
// their activity timestamp. Runs after auth.RequireUser, which sets
// userIDContextKey; requests with no user in context (API-key ingestion)
// pass through untouched.
func (sm *SessionManager) IdleTimeoutMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sm.idleTimeout <= 0 {
			c.Next()
			return
		}

		userIDVal, exists := c.Get(userIDContextKey)
		if !exists {
			c.Next()
			return
		}
		userID, ok := userIDVal.(string)
		if !ok || userID == "" {
			c.Next()
			return
		}

		sm.mu.Lock()
		lastActive, seen := sm.lastActivity[userID]
		if seen && time.Since(lastActive) > sm.idleTimeout {
			delete(sm.lastActivity, userID)
			sm.mu.Unlock()
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":  "session expired",
				"reason": "idle_timeout",
			})
			c.Abort()
			return
		}
		sm.lastActivity[userID] = time.Now()
		sm.mu.Unlock()

		c.Next()
	}
}
