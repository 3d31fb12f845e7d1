package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/models"
	"github.com/apexbridge-tech/bugspotter/internal/notify"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
	"github.com/apexbridge-tech/bugspotter/internal/workers"
)

// TicketsHandler links bug reports to external tracker issues. BugSpotter
// stores only the opaque reference; it never calls the tracker itself.
type TicketsHandler struct {
	tickets  *db.TicketRepository
	reports  *db.BugReportRepository
	projects *db.ProjectRepository
	queues   *queue.Queues
}

// NewTicketsHandler builds the tickets handler.
func NewTicketsHandler(tickets *db.TicketRepository, reports *db.BugReportRepository, projects *db.ProjectRepository, queues *queue.Queues) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, reports: reports, projects: projects, queues: queues}
}

// RegisterRoutes mounts ticket endpoints nested under a bug report, plus
// a direct by-id route, behind the user JWT middleware.
func (h *TicketsHandler) RegisterRoutes(router *gin.RouterGroup, userMW gin.HandlerFunc) {
	g := router.Group("/reports/:id/tickets", userMW)
	g.POST("", h.Create)
	g.GET("", h.List)

	single := router.Group("/tickets", userMW)
	single.PATCH("/:ticketId", h.UpdateStatus)
	single.DELETE("/:ticketId", h.Delete)
}

// Create links a new external ticket to a bug report.
func (h *TicketsHandler) Create(c *gin.Context) {
	bugReportID := c.Param("id")
	if err := h.requireAccess(c, bugReportID); err != nil {
		respondError(c, err)
		return
	}

	var req models.TicketCreate
	if !bindJSON(c, &req) {
		return
	}
	ticket, err := h.tickets.Create(c.Request.Context(), bugReportID, req)
	if err != nil {
		respondError(c, err)
		return
	}

	if report, err := h.reports.FindByID(c.Request.Context(), bugReportID, false); err == nil {
		payload := workers.NotificationPayload{
			Type:      notify.EventTicketCreated,
			ProjectID: report.ProjectID,
			ReportID:  bugReportID,
		}
		if _, err := h.queues.AddJob(c.Request.Context(), queue.Notifications, payload, queue.AddJobOptions{}); err != nil {
			logger.Queue().Warn().Err(err).Msg("failed to enqueue ticket notification")
		}
	}

	respondOK(c, http.StatusCreated, ticket)
}

// List returns every ticket linked to a bug report.
func (h *TicketsHandler) List(c *gin.Context) {
	bugReportID := c.Param("id")
	if err := h.requireAccess(c, bugReportID); err != nil {
		respondError(c, err)
		return
	}
	tickets, err := h.tickets.FindByBugReport(c.Request.Context(), bugReportID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, tickets)
}

// UpdateStatus updates a ticket's mirrored status field (e.g. after a
// webhook or manual sync from the external tracker).
func (h *TicketsHandler) UpdateStatus(c *gin.Context) {
	ticket, err := h.tickets.FindByID(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.requireAccess(c, ticket.BugReportID); err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if err := h.tickets.UpdateStatus(c.Request.Context(), ticket.ID, req.Status); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"updated": true})
}

// Delete unlinks a ticket from its bug report.
func (h *TicketsHandler) Delete(c *gin.Context) {
	ticket, err := h.tickets.FindByID(c.Request.Context(), c.Param("ticketId"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.requireAccess(c, ticket.BugReportID); err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.tickets.Delete(c.Request.Context(), ticket.ID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *TicketsHandler) requireAccess(c *gin.Context, bugReportID string) error {
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
