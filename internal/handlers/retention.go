package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/models"
	"github.com/apexbridge-tech/bugspotter/internal/retention"
)

// RetentionHandler serves admin-only retention policy management and the
// preview/apply/legal-hold/restore actions the nightly engine also runs
// on a schedule.
type RetentionHandler struct {
	policies *db.RetentionPolicyRepository
	engine   *retention.Engine
}

// NewRetentionHandler builds the retention handler.
func NewRetentionHandler(policies *db.RetentionPolicyRepository, engine *retention.Engine) *RetentionHandler {
	return &RetentionHandler{policies: policies, engine: engine}
}

// RegisterRoutes mounts the retention endpoints, all admin-only.
func (h *RetentionHandler) RegisterRoutes(router *gin.RouterGroup, userMW, adminMW gin.HandlerFunc) {
	g := router.Group("/retention", userMW, adminMW)
	g.GET("/policies/:projectId", h.GetPolicy)
	g.PUT("/policies/:projectId", h.UpsertPolicy)
	g.DELETE("/policies/:projectId", h.DeletePolicy)
	g.GET("/preview", h.Preview)
	g.POST("/apply", h.Apply)
	g.POST("/legal-hold", h.LegalHold)
	g.POST("/restore", h.Restore)
}

// GetPolicy returns a project's retention policy override. When none is
// configured the response data is null (the global default then applies).
func (h *RetentionHandler) GetPolicy(c *gin.Context) {
	policy, err := h.policies.FindByProject(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, policy)
}

// UpsertPolicy creates or replaces a project's retention policy.
func (h *RetentionHandler) UpsertPolicy(c *gin.Context) {
	var req models.RetentionPolicyUpsert
	if !bindJSON(c, &req) {
		return
	}
	if _, err := retention.Resolve(&models.RetentionPolicy{
		ProjectID:               c.Param("projectId"),
		BugReportRetentionDays:  req.BugReportRetentionDays,
		ScreenshotRetentionDays: req.ScreenshotRetentionDays,
		ReplayRetentionDays:     req.ReplayRetentionDays,
		AttachmentRetentionDays: req.AttachmentRetentionDays,
		ArchivedRetentionDays:   req.ArchivedRetentionDays,
		ArchiveBeforeDelete:     req.ArchiveBeforeDelete,
		DataClassification:      req.DataClassification,
		ComplianceRegion:        req.ComplianceRegion,
		Tier:                    req.Tier,
	}, isAdmin(c)); err != nil {
		respondError(c, err)
		return
	}

	policy, err := h.policies.Upsert(c.Request.Context(), c.Param("projectId"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, policy)
}

// DeletePolicy removes a project's override, falling back to global defaults.
func (h *RetentionHandler) DeletePolicy(c *gin.Context) {
	ok, err := h.policies.Delete(c.Request.Context(), c.Param("projectId"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": ok})
}

// Preview reports how many reports a retention pass would affect without
// deleting anything.
func (h *RetentionHandler) Preview(c *gin.Context) {
	preview, err := h.engine.Preview(c.Request.Context(), c.Query("projectId"), isAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, preview)
}

// Apply runs a retention pass. With dryRun=true it only counts expired
// reports; otherwise confirm=true is required, and a request with
// neither fails with ConfirmationRequiredError (400).
func (h *RetentionHandler) Apply(c *gin.Context) {
	var req models.RetentionApplyOptions
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.engine.Apply(c.Request.Context(), req, isAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// LegalHold toggles the legal hold flag on a set of reports, exempting
// them from retention deletion regardless of policy.
func (h *RetentionHandler) LegalHold(c *gin.Context) {
	var req models.LegalHoldRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.LegalHold(c.Request.Context(), req.ReportIDs, req.Hold); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"updated": len(req.ReportIDs)})
}

// Restore clears deleted_at for a set of soft-deleted reports.
func (h *RetentionHandler) Restore(c *gin.Context) {
	var req models.RestoreRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.engine.Restore(c.Request.Context(), req.ReportIDs); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"restored": len(req.ReportIDs)})
}
