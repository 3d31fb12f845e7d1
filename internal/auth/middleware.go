// Gin middleware for the two credential types spec.md §4.6 describes:
// a project API key for SDK ingestion requests, and a user JWT bearer
// token for dashboard requests. Each sets the context keys the rest of
// the middleware chain (internal/middleware's rate limiter, RBAC) reads.
package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/middleware"
)

const UserIDKey = "userID"

// RequireProjectAPIKey validates the X-API-Key header against
// projects.api_key and sets middleware.ProjectIDKey for the per-project
// rate limiter and downstream ingestion handlers.
func RequireProjectAPIKey(projects *db.ProjectRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("X-API-Key")
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing X-API-Key header"})
			c.Abort()
			return
		}

		project, err := projects.FindByAPIKey(c.Request.Context(), key)
		if err != nil || project == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Set(middleware.ProjectIDKey, project.ID)
		c.Set("project", project)
		c.Next()
	}
}

// RequireUser validates a Bearer JWT and sets UserIDKey/middleware.RoleKey
// for handlers and internal/middleware.RequireRole.
func RequireUser(jwtManager *JWTManager, users *db.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		user, err := users.FindByID(c.Request.Context(), claims.Subject)
		if err != nil || user == nil || !user.Active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account not found or disabled"})
			c.Abort()
			return
		}

		c.Set(UserIDKey, user.ID)
		c.Set(middleware.RoleKey, user.Role)
		c.Next()
	}
}
