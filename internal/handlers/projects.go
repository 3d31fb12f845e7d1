package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/middleware"
	"github.com/apexbridge-tech/bugspotter/internal/models"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

// ProjectsHandler serves project CRUD and API key management. Every
// project is owned by exactly one user; an admin may also act on any
// project, but a regular user may only touch their own.
type ProjectsHandler struct {
	projects *db.ProjectRepository
	reports  *db.BugReportRepository
	storage  storage.Storage
}

// NewProjectsHandler builds the projects handler.
func NewProjectsHandler(projects *db.ProjectRepository, reports *db.BugReportRepository, store storage.Storage) *ProjectsHandler {
	return &ProjectsHandler{projects: projects, reports: reports, storage: store}
}

// RegisterRoutes mounts the project endpoints behind the user JWT
// middleware; callers supply it so every handler file shares one chain.
func (h *ProjectsHandler) RegisterRoutes(router *gin.RouterGroup, userMW gin.HandlerFunc) {
	g := router.Group("/projects", userMW)
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/regenerate-key", h.RegenerateAPIKey)
}

// Create creates a project owned by the authenticated user.
func (h *ProjectsHandler) Create(c *gin.Context) {
	var req models.ProjectCreate
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.Create(c.Request.Context(), currentUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, project)
}

// List returns the authenticated user's projects, or every project for
// an admin.
func (h *ProjectsHandler) List(c *gin.Context) {
	if isAdmin(c) {
		projects, pagination, err := h.projects.List(c.Request.Context(), listParams(c))
		if err != nil {
			respondError(c, err)
			return
		}
		respondList(c, projects, pagination)
		return
	}

	projects, err := h.projects.FindByOwner(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, projects)
}

// Get returns a single project, enforcing ownership for non-admins.
func (h *ProjectsHandler) Get(c *gin.Context) {
	project, err := h.loadOwned(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, project)
}

// Update applies a partial update to a project's name/settings.
func (h *ProjectsHandler) Update(c *gin.Context) {
	project, err := h.loadOwned(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	var req models.ProjectUpdate
	if !bindJSON(c, &req) {
		return
	}
	updated, err := h.projects.Update(c.Request.Context(), project.ID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, updated)
}

// Delete removes a project and its stored evidence. Bug reports
// themselves cascade at the database level; the object store does not
// cascade, so the screenshot/replay/attachment prefixes of the project's
// reports are cleared here before the row is deleted. Only reports that
// are not soft-deleted are listed, so the objects of soft-deleted reports
// stay in the store.
func (h *ProjectsHandler) Delete(c *gin.Context) {
	project, err := h.loadOwned(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	const reportPageSize = 100
	params := models.ListParams{Page: 1, Limit: reportPageSize}
	for {
		reports, pagination, err := h.reports.List(c.Request.Context(), project.ID, params)
		if err != nil {
			respondError(c, err)
			return
		}
		for _, report := range reports {
			_, _ = h.storage.DeleteFolder(c.Request.Context(), storage.ScreenshotPrefix(project.ID, report.ID))
			_, _ = h.storage.DeleteFolder(c.Request.Context(), storage.ReplayPrefix(project.ID, report.ID))
			_, _ = h.storage.DeleteFolder(c.Request.Context(), storage.AttachmentPrefix(project.ID, report.ID))
		}
		if int64(params.Page*params.Limit) >= pagination.Total {
			break
		}
		params.Page++
	}

	if _, err := h.projects.Delete(c.Request.Context(), project.ID); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"deleted": true})
}

// RegenerateAPIKey replaces a project's ingestion API key.
func (h *ProjectsHandler) RegenerateAPIKey(c *gin.Context) {
	project, err := h.loadOwned(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	key, err := h.projects.RegenerateAPIKey(c.Request.Context(), project.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"apiKey": key})
}

func (h *ProjectsHandler) loadOwned(c *gin.Context, id string) (*models.Project, error) {
	project, err := h.projects.FindByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !isAdmin(c) && project.OwnerID != currentUserID(c) {
		return nil, apperrors.NewAuthorizationError("not the owner of this project")
	}
	return project, nil
}

func isAdmin(c *gin.Context) bool {
	roleVal, _ := c.Get(middleware.RoleKey)
	role, _ := roleVal.(models.Role)
	return role == models.RoleAdmin
}
