package middleware

import "github.com/gin-gonic/gin"

// CORS builds a gin.HandlerFunc allowing cross-origin requests only from
// an allowlist. origins is called on every request rather than captured
// once, so an admin's edit to instance settings' corsOrigins takes effect
// without a restart, the same live-read pattern ProjectRateLimiter uses.
// An empty allowlist allows nothing but still answers preflight requests
// so browsers get a clean same-origin-only failure rather than a hang.
func CORS(origins func() []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := false
		for _, o := range origins() {
			if o == origin {
				allowed = true
				break
			}
		}
		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		}

		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
