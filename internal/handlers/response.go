// Package handlers wires the HTTP surface described by spec.md §4 on top
// of internal/db, internal/auth, internal/queue, internal/storage and
// internal/retention. Each file owns one resource family and exposes a
// RegisterRoutes method taking the /api/v1 router group plus the
// middleware its routes need (the health handler also takes the root
// engine); router.go assembles the routes through these methods.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// respondOK writes a successful envelope with no pagination.
func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, models.Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// respondList writes a successful envelope carrying a page of results.
func respondList(c *gin.Context, data interface{}, pagination models.Pagination) {
	c.JSON(http.StatusOK, models.Envelope{
		Success:    true,
		Data:       data,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Pagination: &pagination,
	})
}

// respondError maps err through apperrors.StatusAndCode and writes the
// matching envelope. Callers should return immediately afterward.
func respondError(c *gin.Context, err error) {
	status, code, message := apperrors.StatusAndCode(err)
	c.JSON(status, models.Envelope{
		Success:   false,
		Error:     message,
		Code:      code,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// bindJSON binds the request body into dst, writing a VALIDATION_ERROR
// envelope and returning false on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperrors.NewValidationError(err.Error()))
		return false
	}
	return true
}

// listParams parses the common page/limit/sortBy/sortOrder query
// parameters shared by every list endpoint. A missing, unparsable or
// non-positive page or limit falls back to page 1 / limit 20; a limit
// above 1000 is left for the repository's validatePagination to reject.
func listParams(c *gin.Context) models.ListParams {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page <= 0 {
		page = models.MinPage
	}
	if limit <= 0 {
		limit = 20
	}
	return models.ListParams{
		Page:      page,
		Limit:     limit,
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
		Filters:   map[string]string{},
	}
}

// currentUserID reads the UserIDKey context value set by auth.RequireUser.
func currentUserID(c *gin.Context) string {
	v, _ := c.Get("userID")
	id, _ := v.(string)
	return id
}

// currentProject reads the *models.Project set by auth.RequireProjectAPIKey.
func currentProject(c *gin.Context) *models.Project {
	v, ok := c.Get("project")
	if !ok {
		return nil
	}
	p, _ := v.(*models.Project)
	return p
}

// derefOr returns *p, or fallback if p is nil.
func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
