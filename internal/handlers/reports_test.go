package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/middleware"
	"github.com/apexbridge-tech/bugspotter/internal/models"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

func newTestReportsHandler(t *testing.T) (*ReportsHandler, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	database := db.NewDatabaseForTesting(sqlDB)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queues := queue.New(client)

	store, err := storage.NewLocalStorage(t.TempDir(), "http://storage.local")
	require.NoError(t, err)

	return NewReportsHandler(database.BugReports, database.Sessions, database.Projects, store, queues, 1000), mock
}

func bugReportRow(id, projectID string, status models.Status) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "project_id", "title", "description", "status", "priority", "screenshot_url", "replay_url",
		"metadata", "legal_hold", "retention_class", "deleted_at", "deleted_by", "created_at", "updated_at",
	}).AddRow(id, projectID, "a bug", nil, status, models.PriorityMedium, nil, nil,
		[]byte(`{}`), false, models.ClassGeneral, nil, nil, now, now)
}

func projectRow(id, ownerID string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "name", "api_key", "owner_id", "settings", "created_at", "updated_at"}).
		AddRow(id, "proj", "key-1", ownerID, []byte(`{}`), now, now)
}

func withUser(userID string, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("userID", userID)
		c.Set(middleware.RoleKey, role)
		c.Next()
	}
}

func withProject(project *models.Project) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("project", project)
		c.Next()
	}
}

func TestReportsHandler_IngestCreatesReport(t *testing.T) {
	h, mock := newTestReportsHandler(t)

	router := gin.New()
	group := router.Group("/api/v1")
	group.POST("/reports", withProject(&models.Project{ID: "proj-1"}), h.Ingest)

	mock.ExpectExec(`INSERT INTO bug_reports`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := models.IngestReportRequest{
		Title: "things are broken",
		Report: models.ReportDetail{
			BrowserMetadata: models.BrowserMetadata{Browser: "chrome", OS: "linux", URL: "https://x", Timestamp: 1},
		},
	}
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportsHandler_IngestRejectsMissingProjectContext(t *testing.T) {
	h, _ := newTestReportsHandler(t)

	router := gin.New()
	router.POST("/api/v1/reports", h.Ingest)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReportsHandler_GetReturnsOwnedReport(t *testing.T) {
	h, mock := newTestReportsHandler(t)

	router := gin.New()
	group := router.Group("/api/v1")
	group.GET("/reports/:id", withUser("owner-1", models.RoleUser), h.Get)

	mock.ExpectQuery(`SELECT .* FROM bug_reports WHERE id = \$1`).
		WithArgs("bug-1").
		WillReturnRows(bugReportRow("bug-1", "proj-1", models.StatusOpen))
	mock.ExpectQuery(`SELECT .* FROM projects WHERE id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(projectRow("proj-1", "owner-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/bug-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportsHandler_GetRejectsNonOwner(t *testing.T) {
	h, mock := newTestReportsHandler(t)

	router := gin.New()
	group := router.Group("/api/v1")
	group.GET("/reports/:id", withUser("someone-else", models.RoleUser), h.Get)

	mock.ExpectQuery(`SELECT .* FROM bug_reports WHERE id = \$1`).
		WithArgs("bug-1").
		WillReturnRows(bugReportRow("bug-1", "proj-1", models.StatusOpen))
	mock.ExpectQuery(`SELECT .* FROM projects WHERE id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(projectRow("proj-1", "owner-1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/reports/bug-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportsHandler_DeleteSoftDeletesOwnedReport(t *testing.T) {
	h, mock := newTestReportsHandler(t)

	router := gin.New()
	group := router.Group("/api/v1")
	group.DELETE("/reports/:id", withUser("owner-1", models.RoleUser), h.Delete)

	mock.ExpectQuery(`SELECT .* FROM bug_reports WHERE id = \$1`).
		WithArgs("bug-1").
		WillReturnRows(bugReportRow("bug-1", "proj-1", models.StatusOpen))
	mock.ExpectQuery(`SELECT .* FROM projects WHERE id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(projectRow("proj-1", "owner-1"))
	mock.ExpectExec(`UPDATE bug_reports SET deleted_at`).
		WithArgs("bug-1", "owner-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/reports/bug-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReportsHandler_UpdateSanitizesTitleAndDescription(t *testing.T) {
	h, mock := newTestReportsHandler(t)

	router := gin.New()
	group := router.Group("/api/v1")
	group.PATCH("/reports/:id", withUser("owner-1", models.RoleUser), h.Update)

	mock.ExpectQuery(`SELECT .* FROM bug_reports WHERE id = \$1`).
		WithArgs("bug-1").
		WillReturnRows(bugReportRow("bug-1", "proj-1", models.StatusOpen))
	mock.ExpectQuery(`SELECT .* FROM projects WHERE id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(projectRow("proj-1", "owner-1"))
	mock.ExpectQuery(`SELECT .* FROM bug_reports WHERE id = \$1`).
		WithArgs("bug-1").
		WillReturnRows(bugReportRow("bug-1", "proj-1", models.StatusOpen))
	mock.ExpectExec(`UPDATE bug_reports SET title`).
		WithArgs("bug-1", "still a title", nil, models.StatusOpen, models.PriorityMedium, models.ClassGeneral, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	payload, err := json.Marshal(map[string]string{"title": "<script>alert(1)</script>still a title"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/reports/bug-1", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}
