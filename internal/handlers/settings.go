package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// SettingsHandler serves admin-only reads and updates of the instance
// settings singleton seeded by the setup wizard.
type SettingsHandler struct {
	settings *db.SettingsRepository
}

// NewSettingsHandler builds the settings handler.
func NewSettingsHandler(settings *db.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// RegisterRoutes mounts the settings endpoints, admin-only.
func (h *SettingsHandler) RegisterRoutes(router *gin.RouterGroup, userMW, adminMW gin.HandlerFunc) {
	g := router.Group("/settings", userMW, adminMW)
	g.GET("", h.Get)
	g.PATCH("", h.Update)
}

// Get returns the instance settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, settings)
}

// Update applies a full replacement of the editable settings fields.
// Storage backend/credentials are set only at setup time and are not
// editable here.
func (h *SettingsHandler) Update(c *gin.Context) {
	current, err := h.settings.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	var req models.InstanceSettings
	if !bindJSON(c, &req) {
		return
	}
	req.StorageBackend = current.StorageBackend
	req.StorageCredentials = current.StorageCredentials

	if err := h.settings.Update(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, req)
}
