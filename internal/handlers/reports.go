package handlers

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/middleware"
	"github.com/apexbridge-tech/bugspotter/internal/models"
	"github.com/apexbridge-tech/bugspotter/internal/notify"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
	"github.com/apexbridge-tech/bugspotter/internal/workers"
)

// ReportsHandler serves SDK ingestion and the dashboard's bug report CRUD.
type ReportsHandler struct {
	reports               *db.BugReportRepository
	sessions              *db.SessionRepository
	projects              *db.ProjectRepository
	storage               storage.Storage
	queues                *queue.Queues
	backpressureThreshold int64
	sanitizer             *middleware.InputValidator
}

// NewReportsHandler builds the reports handler.
func NewReportsHandler(reports *db.BugReportRepository, sessions *db.SessionRepository, projects *db.ProjectRepository, store storage.Storage, queues *queue.Queues, backpressureThreshold int) *ReportsHandler {
	return &ReportsHandler{
		reports:               reports,
		sessions:              sessions,
		projects:              projects,
		storage:               store,
		queues:                queues,
		backpressureThreshold: int64(backpressureThreshold),
		sanitizer:             middleware.NewInputValidator(),
	}
}

// RegisterRoutes mounts the ingestion route behind the project API key
// middleware, and the dashboard CRUD routes behind the user JWT middleware.
// apiKeyMW and projectRateLimit guard ingestion; userMW guards the rest.
func (h *ReportsHandler) RegisterRoutes(router *gin.RouterGroup, apiKeyMW, projectRateLimit, userMW gin.HandlerFunc) {
	router.POST("/reports", apiKeyMW, projectRateLimit, h.Ingest)

	authed := router.Group("/reports", userMW)
	authed.GET("", h.List)
	authed.GET("/:id", h.Get)
	authed.PATCH("/:id", h.Update)
	authed.DELETE("/:id", h.Delete)
	authed.POST("/:id/restore", middleware.RequireAdmin(), h.Restore)
}

// Ingest persists an incoming report and queues its binary evidence.
// Screenshot thumbnailing and replay chunking both happen off the request
// path in internal/workers, keeping the SDK's synchronous call cheap.
func (h *ReportsHandler) Ingest(c *gin.Context) {
	project := currentProject(c)
	if project == nil {
		respondError(c, apperrors.NewAuthenticationError("missing project context"))
		return
	}

	if over, err := h.queueOverBackpressure(c); err != nil {
		respondError(c, err)
		return
	} else if over {
		respondError(c, apperrors.NewQueueBackpressureError(queue.Screenshots))
		return
	}

	var req models.IngestReportRequest
	if !bindJSON(c, &req) {
		return
	}

	metadata, err := reportMetadataJSON(req)
	if err != nil {
		respondError(c, apperrors.NewValidationError(err.Error()))
		return
	}

	title, description := h.sanitizer.SanitizeReport(req.Title, req.Description)

	report, err := h.reports.Create(c.Request.Context(), db.CreateParams{
		ProjectID:      project.ID,
		Title:          title,
		Description:    description,
		Metadata:       metadata,
		RetentionClass: models.ClassGeneral,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	if req.Report.ScreenshotBase64 != "" {
		if err := h.queueScreenshot(c, project.ID, report.ID, req.Report.ScreenshotBase64); err != nil {
			respondError(c, err)
			return
		}
	}

	if req.Report.SessionReplay != nil {
		if err := h.queueReplay(c, project.ID, report.ID, *req.Report.SessionReplay); err != nil {
			respondError(c, err)
			return
		}
	}

	h.queueNotification(c, workers.NotificationPayload{
		Type:      notify.EventReportCreated,
		ProjectID: project.ID,
		ReportID:  report.ID,
	})

	logger.HTTP().Info().Str("bugReportId", report.ID).Str("projectId", project.ID).Msg("bug report ingested")
	respondOK(c, http.StatusCreated, gin.H{"id": report.ID})
}

// queueNotification enqueues a fire-and-forget event for the notification
// worker in internal/workers to deliver. Failure to enqueue is logged, not surfaced to the
// caller: a dropped notification never blocks ingestion.
func (h *ReportsHandler) queueNotification(c *gin.Context, payload workers.NotificationPayload) {
	if _, err := h.queues.AddJob(c.Request.Context(), queue.Notifications, payload, queue.AddJobOptions{}); err != nil {
		logger.Queue().Warn().Err(err).Str("eventType", payload.Type).Msg("failed to enqueue notification")
	}
}

// queueOverBackpressure reports whether either binary-evidence queue has
// exceeded the configured waiting-job ceiling.
func (h *ReportsHandler) queueOverBackpressure(c *gin.Context) (bool, error) {
	for _, q := range []string{queue.Screenshots, queue.Replays} {
		metrics, err := h.queues.GetQueueMetrics(c.Request.Context(), q)
		if err != nil {
			return false, apperrors.NewQueueUnavailableError(err)
		}
		if metrics.Waiting > h.backpressureThreshold {
			return true, nil
		}
	}
	return false, nil
}

// queueScreenshot uploads the raw screenshot bytes and enqueues
// thumbnail generation.
func (h *ReportsHandler) queueScreenshot(c *gin.Context, projectID, bugID, screenshotBase64 string) error {
	data, err := base64.StdEncoding.DecodeString(screenshotBase64)
	if err != nil {
		return apperrors.NewValidationError("screenshotBase64 is not valid base64")
	}
	result, err := h.storage.UploadScreenshot(c.Request.Context(), projectID, bugID, data)
	if err != nil {
		return apperrors.NewStorageUploadError(err)
	}
	if _, err := h.queues.AddJob(c.Request.Context(), queue.Screenshots, workers.ScreenshotPayload{
		BugReportID: bugID,
		ProjectID:   projectID,
		StorageKey:  result.Key,
	}, queue.AddJobOptions{}); err != nil {
		return apperrors.NewQueueUnavailableError(err)
	}
	return nil
}

// queueReplay creates the session row and enqueues event chunking.
func (h *ReportsHandler) queueReplay(c *gin.Context, projectID, bugID string, payload models.SessionReplayPayload) error {
	session, err := h.sessions.Create(c.Request.Context(), bugID, payload, 0)
	if err != nil {
		return err
	}
	if _, err := h.queues.AddJob(c.Request.Context(), queue.Replays, workers.ReplayPayload{
		BugReportID: bugID,
		ProjectID:   projectID,
		SessionID:   session.ID,
	}, queue.AddJobOptions{}); err != nil {
		return apperrors.NewQueueUnavailableError(err)
	}
	return nil
}

func reportMetadataJSON(req models.IngestReportRequest) (models.RawJSON, error) {
	meta := models.ReportMetadata{
		ConsoleLogs:     req.Report.ConsoleLogs,
		NetworkRequests: req.Report.NetworkRequests,
		BrowserMetadata: req.Report.BrowserMetadata,
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return models.RawJSON(raw), nil
}

// List returns a paginated slice of a project's bug reports. The caller
// must be a member of the project (enforced via ownership, not role,
// since any authenticated user's own project reports are visible to them).
func (h *ReportsHandler) List(c *gin.Context) {
	projectID := c.Query("projectId")
	if projectID == "" {
		respondError(c, apperrors.NewValidationError("projectId query parameter is required"))
		return
	}
	if err := h.requireProjectAccess(c, projectID); err != nil {
		respondError(c, err)
		return
	}

	reports, pagination, err := h.reports.List(c.Request.Context(), projectID, listParams(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondList(c, reports, pagination)
}

// Get returns a single bug report by id.
func (h *ReportsHandler) Get(c *gin.Context) {
	report, err := h.reports.FindByID(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.requireProjectAccess(c, report.ProjectID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, report)
}

// Update applies a partial update to a bug report's status, priority,
// title, description, or retention class.
func (h *ReportsHandler) Update(c *gin.Context) {
	report, err := h.reports.FindByID(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.requireProjectAccess(c, report.ProjectID); err != nil {
		respondError(c, err)
		return
	}

	var req models.BugReportUpdate
	if !bindJSON(c, &req) {
		return
	}
	if req.Title != nil || req.Description != nil {
		title, description := h.sanitizer.SanitizeReport(derefOr(req.Title, ""), derefOr(req.Description, ""))
		if req.Title != nil {
			req.Title = &title
		}
		if req.Description != nil {
			req.Description = &description
		}
	}
	updated, err := h.reports.Update(c.Request.Context(), report.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, updated)
}

// Delete soft-deletes a bug report, recording the acting user.
func (h *ReportsHandler) Delete(c *gin.Context) {
	report, err := h.reports.FindByID(c.Request.Context(), c.Param("id"), false)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.requireProjectAccess(c, report.ProjectID); err != nil {
		respondError(c, err)
		return
	}
	if err := h.reports.SoftDelete(c.Request.Context(), report.ID, currentUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}

// Restore reverses a soft delete. Admin-only: a deleted report is, by
// the time anyone but an admin would want it back, usually deleted for a
// compliance reason.
func (h *ReportsHandler) Restore(c *gin.Context) {
	if err := h.reports.Restore(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"restored": true})
}

// requireProjectAccess enforces that the authenticated user owns the
// project a bug report belongs to, unless they're an admin.
func (h *ReportsHandler) requireProjectAccess(c *gin.Context, projectID string) error {
	if roleVal, _ := c.Get(middleware.RoleKey); roleVal == models.RoleAdmin {
		return nil
	}
	project, err := h.projects.FindByID(c.Request.Context(), projectID)
	if err != nil {
		return err
	}
	if project.OwnerID != currentUserID(c) {
		return apperrors.NewAuthorizationError("not a member of this project")
	}
	return nil
}
