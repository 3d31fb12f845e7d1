package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// UsersHandler serves admin-only account management. Every route here
// must run behind both RequireUser and middleware.RequireAdmin.
type UsersHandler struct {
	users *db.UserRepository
}

// NewUsersHandler builds the users handler.
func NewUsersHandler(users *db.UserRepository) *UsersHandler {
	return &UsersHandler{users: users}
}

// RegisterRoutes mounts the admin user management endpoints.
func (h *UsersHandler) RegisterRoutes(router *gin.RouterGroup, userMW, adminMW gin.HandlerFunc) {
	g := router.Group("/users", userMW, adminMW)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}

// Create provisions a new local account.
func (h *UsersHandler) Create(c *gin.Context) {
	var req models.UserCreate
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, user)
}

// List returns a paginated slice of accounts.
func (h *UsersHandler) List(c *gin.Context) {
	users, pagination, err := h.users.List(c.Request.Context(), listParams(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, users, pagination)
}

// Get returns a single account.
func (h *UsersHandler) Get(c *gin.Context) {
	user, err := h.users.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// Update applies a partial update to an account's name, role, or active flag.
func (h *UsersHandler) Update(c *gin.Context) {
	var req models.UserUpdate
	if !bindJSON(c, &req) {
		return
	}
	if req.Role != nil && !req.Role.Valid() {
		respondError(c, apperrors.NewValidationError("invalid role"))
		return
	}
	user, err := h.users.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// Delete removes an account. An admin may not delete their own account,
// to avoid locking every admin out of the instance.
func (h *UsersHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == currentUserID(c) {
		respondError(c, apperrors.NewValidationError("cannot delete your own account"))
		return
	}
	if _, err := h.users.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}
