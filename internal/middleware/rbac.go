package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// RoleKey is the gin context key the auth middleware sets after
// validating a user's JWT, holding their models.Role.
const RoleKey = "role"

// RequireRole returns middleware that allows a request through only if
// the authenticated user's role is one of allowed. It must run after
// the JWT auth middleware has set RoleKey.
func RequireRole(allowed ...models.Role) gin.HandlerFunc {
	set := make(map[models.Role]bool, len(allowed))
	for _, r := range allowed {
		set[r] = true
	}

	return func(c *gin.Context) {
		roleVal, exists := c.Get(RoleKey)
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			c.Abort()
			return
		}

		role, ok := roleVal.(models.Role)
		if !ok || !set[role] {
			c.JSON(http.StatusForbidden, gin.H{
				"error":   "insufficient permissions",
				"details": "this action requires a higher role",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin is shorthand for RequireRole(models.RoleAdmin).
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}
