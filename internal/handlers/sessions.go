package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
)

// SessionsHandler serves read access to session replay metadata. Sessions
// are created inline during ingestion (see ReportsHandler.queueReplay),
// never through a dedicated creation endpoint.
type SessionsHandler struct {
	sessions *db.SessionRepository
	reports  *db.BugReportRepository
	projects *db.ProjectRepository
}

// NewSessionsHandler builds the sessions handler.
func NewSessionsHandler(sessions *db.SessionRepository, reports *db.BugReportRepository, projects *db.ProjectRepository) *SessionsHandler {
	return &SessionsHandler{sessions: sessions, reports: reports, projects: projects}
}

// RegisterRoutes mounts the session endpoints behind the user JWT middleware.
func (h *SessionsHandler) RegisterRoutes(router *gin.RouterGroup, userMW gin.HandlerFunc) {
	g := router.Group("/sessions", userMW)
	g.GET("/:id", h.Get)
	g.GET("/by-report/:bugReportId", h.GetByBugReport)
}

// Get returns a session by id.
func (h *SessionsHandler) Get(c *gin.Context) {
	session, err := h.sessions.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.requireAccess(c, session.BugReportID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, session)
}

// GetByBugReport returns the (at most one) session for a bug report.
func (h *SessionsHandler) GetByBugReport(c *gin.Context) {
	bugReportID := c.Param("bugReportId")
	if err := h.requireAccess(c, bugReportID); err != nil {
		respondError(c, err)
		return
	}
	session, err := h.sessions.FindByBugReport(c.Request.Context(), bugReportID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, session)
}

// requireAccess enforces the same project-ownership rule reports.go uses,
// reached through the bug report a session belongs to.
func (h *SessionsHandler) requireAccess(c *gin.Context, bugReportID string) error {
	if isAdmin(c) {
		return nil
	}
	report, err := h.reports.FindByID(c.Request.Context(), bugReportID, false)
	if err != nil {
		return err
	}
	project, err := h.projects.FindByID(c.Request.Context(), report.ProjectID)
	if err != nil {
		return err
	}
	if project.OwnerID != currentUserID(c) {
		return apperrors.NewAuthorizationError("not a member of this project")
	}
	return nil
}
