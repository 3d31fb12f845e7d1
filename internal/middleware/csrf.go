// CSRF protection using the double-submit cookie pattern. Safe methods
// (GET/HEAD/OPTIONS) receive a token in both a cookie and a response
// header; state-changing methods must echo it back in the header, and
// the two are compared in constant time. Requests carrying a Bearer JWT
// or an X-API-Key header are exempt: CSRF exploits the browser's
// automatic cookie-sending behavior, and an attacker cannot set either
// header cross-origin.
package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	CSRFTokenLength = 32
	CSRFTokenHeader = "X-CSRF-Token"
	CSRFCookieName  = "csrf_token"
	CSRFTokenExpiry = 24 * time.Hour
)

// CSRFStore tracks issued tokens and their expiry.
type CSRFStore struct {
	tokens map[string]time.Time
	mu     sync.RWMutex
}

var (
	globalCSRFStore = &CSRFStore{
		tokens: make(map[string]time.Time),
	}
	csrfCleanupOnce sync.Once

	// tokenGenerationMu serializes token issuance. A request carrying a
	// valid token cookie reuses it; requests without one each get a new
	// token.
	tokenGenerationMu sync.Mutex
)

func generateCSRFToken() (string, error) {
	bytes := make([]byte, CSRFTokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

func (cs *CSRFStore) addToken(token string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.tokens[token] = time.Now().Add(CSRFTokenExpiry)
}

func (cs *CSRFStore) validateToken(token string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	expiry, exists := cs.tokens[token]
	if !exists {
		return false
	}
	return time.Now().Before(expiry)
}

func (cs *CSRFStore) removeToken(token string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.tokens, token)
}

// cleanup sweeps expired tokens once an hour.
func (cs *CSRFStore) cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		cs.mu.Lock()
		now := time.Now()
		for token, expiry := range cs.tokens {
			if now.After(expiry) {
				delete(cs.tokens, token)
			}
		}
		cs.mu.Unlock()
	}
}

// CSRFProtection returns middleware enforcing the double-submit cookie
// pattern on state-changing requests that carry neither a Bearer token
// nor an X-API-Key header: the dashboard's cookie-based calls, and also
// login and setup. Bearer-token and API-key (SDK) requests bypass it.
func CSRFProtection() gin.HandlerFunc {
	csrfCleanupOnce.Do(func() {
		go globalCSRFStore.cleanup()
	})

	return func(c *gin.Context) {
		if strings.HasPrefix(c.GetHeader("Authorization"), "Bearer ") || c.GetHeader("X-API-Key") != "" {
			c.Next()
			return
		}

		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			tokenGenerationMu.Lock()

			existingToken, err := c.Cookie(CSRFCookieName)
			if err == nil && existingToken != "" && globalCSRFStore.validateToken(existingToken) {
				tokenGenerationMu.Unlock()
				c.Header(CSRFTokenHeader, existingToken)
				c.Next()
				return
			}

			token, err := generateCSRFToken()
			if err != nil {
				tokenGenerationMu.Unlock()
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "failed to generate CSRF token",
				})
				return
			}

			globalCSRFStore.addToken(token)
			c.Header(CSRFTokenHeader, token)

			secureCookie := gin.Mode() != gin.DebugMode
			c.SetCookie(CSRFCookieName, token, int(CSRFTokenExpiry.Seconds()), "/", "", secureCookie, true)

			tokenGenerationMu.Unlock()
			c.Next()
			return
		}

		headerToken := c.GetHeader(CSRFTokenHeader)
		cookieToken, err := c.Cookie(CSRFCookieName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "CSRF token missing",
				"message": "CSRF cookie not found",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "CSRF token mismatch",
				"message": "CSRF tokens do not match",
			})
			return
		}

		if !globalCSRFStore.validateToken(cookieToken) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "CSRF token invalid",
				"message": "CSRF token has expired or is invalid",
			})
			return
		}

		c.Next()
	}
}

// GetCSRFToken returns the CSRF token set on the current request.
func GetCSRFToken(c *gin.Context) string {
	return c.GetHeader(CSRFTokenHeader)
}
