package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// AuditLogsHandler serves admin-only querying of the append-only audit
// trail. Rows themselves are written by internal/audit's buffered
// pipeline, not by this handler.
type AuditLogsHandler struct {
	auditLogs *db.AuditLogRepository
}

// NewAuditLogsHandler builds the audit logs handler.
func NewAuditLogsHandler(auditLogs *db.AuditLogRepository) *AuditLogsHandler {
	return &AuditLogsHandler{auditLogs: auditLogs}
}

// RegisterRoutes mounts the audit log query endpoints.
func (h *AuditLogsHandler) RegisterRoutes(router *gin.RouterGroup, userMW, adminMW gin.HandlerFunc) {
	g := router.Group("/audit-logs", userMW, adminMW)
	g.GET("", h.Query)
	g.GET("/stats", h.Stats)
}

// Query returns a filtered, paginated slice of audit log rows.
func (h *AuditLogsHandler) Query(c *gin.Context) {
	filter, err := parseAuditFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	logs, pagination, err := h.auditLogs.Query(c.Request.Context(), filter, listParams(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, logs, pagination)
}

// Stats aggregates audit activity over the same filter window.
func (h *AuditLogsHandler) Stats(c *gin.Context) {
	filter, err := parseAuditFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	stats, err := h.auditLogs.Stats(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, stats)
}

func parseAuditFilter(c *gin.Context) (models.AuditLogFilter, error) {
	filter := models.AuditLogFilter{
		UserID:   c.Query("userId"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
	}
	if v := c.Query("success"); v != "" {
		b := v == "true"
		filter.Success = &b
	}
	if v := c.Query("startDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperrors.NewValidationError("startDate must be RFC3339")
		}
		filter.StartDate = &t
	}
	if v := c.Query("endDate"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperrors.NewValidationError("endDate must be RFC3339")
		}
		filter.EndDate = &t
	}
	return filter, nil
}
