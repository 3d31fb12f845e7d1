package retention

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/models"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, *db.Database) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	database := db.NewDatabaseForTesting(sqlDB)

	store, err := storage.NewLocalStorage(t.TempDir(), "http://storage.local")
	require.NoError(t, err)

	return NewEngine(database, store), mock, database
}

func retentionPolicyRow(p *models.RetentionPolicy) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"project_id", "bug_report_retention_days", "screenshot_retention_days", "replay_retention_days",
		"attachment_retention_days", "archived_retention_days", "archive_before_delete",
		"data_classification", "compliance_region", "tier",
	}).AddRow(p.ProjectID, p.BugReportRetentionDays, p.ScreenshotRetentionDays, p.ReplayRetentionDays,
		p.AttachmentRetentionDays, p.ArchivedRetentionDays, p.ArchiveBeforeDelete,
		p.DataClassification, p.ComplianceRegion, p.Tier)
}

func bugReportRow(id, projectID string, createdAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "project_id", "title", "description", "status", "priority", "screenshot_url", "replay_url",
		"metadata", "legal_hold", "retention_class", "deleted_at", "deleted_by", "created_at", "updated_at",
	}).AddRow(id, projectID, "a bug", nil, models.StatusOpen, models.PriorityMedium, nil, nil,
		[]byte(`{}`), false, models.ClassGeneral, nil, nil, createdAt, createdAt)
}

func TestEngine_PreviewCountsExpiredReports(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	policy := &models.RetentionPolicy{
		ProjectID: "proj-1", BugReportRetentionDays: 30, ScreenshotRetentionDays: 30,
		ReplayRetentionDays: 30, AttachmentRetentionDays: 30, ArchivedRetentionDays: 30,
		DataClassification: models.ClassGeneral, ComplianceRegion: models.RegionNone, Tier: models.TierFree,
	}
	mock.ExpectQuery(`SELECT .* FROM retention_policy WHERE project_id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(retentionPolicyRow(policy))

	mock.ExpectQuery(`SELECT count\(\*\) FROM bug_reports`).
		WithArgs("proj-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))

	mock.ExpectQuery(`SELECT .* FROM bug_reports\s+WHERE project_id = \$1`).
		WithArgs("proj-1", sqlmock.AnyArg(), candidatePageSize).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "project_id", "title", "description", "status", "priority", "screenshot_url", "replay_url",
			"metadata", "legal_hold", "retention_class", "deleted_at", "deleted_by", "created_at", "updated_at",
		}))

	preview, err := engine.Preview(context.Background(), "proj-1", false)
	require.NoError(t, err)
	require.Equal(t, int64(2), preview.TotalReports)
	require.Equal(t, []string{"proj-1"}, preview.AffectedProjects)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_ApplyDryRunDoesNotMutate(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	policy := &models.RetentionPolicy{
		ProjectID: "proj-1", BugReportRetentionDays: 30, ScreenshotRetentionDays: 30,
		ReplayRetentionDays: 30, AttachmentRetentionDays: 30, ArchivedRetentionDays: 30,
		DataClassification: models.ClassGeneral, ComplianceRegion: models.RegionNone, Tier: models.TierFree,
	}
	mock.ExpectQuery(`SELECT .* FROM retention_policy WHERE project_id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(retentionPolicyRow(policy))

	mock.ExpectQuery(`SELECT count\(\*\) FROM bug_reports`).
		WithArgs("proj-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	result, err := engine.Apply(context.Background(), models.RetentionApplyOptions{ProjectID: "proj-1", DryRun: true}, false)
	require.NoError(t, err)
	require.Equal(t, int64(3), result.TotalDeleted)
	require.Equal(t, 1, result.ProjectsProcessed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_ApplyRejectsWithoutConfirm(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	_, err := engine.Apply(context.Background(), models.RetentionApplyOptions{ProjectID: "proj-1", DryRun: false, Confirm: false}, false)
	require.Error(t, err)
}

func TestEngine_ApplyDeletesExpiredReportInTransaction(t *testing.T) {
	engine, mock, _ := newTestEngine(t)

	policy := &models.RetentionPolicy{
		ProjectID: "proj-1", BugReportRetentionDays: 30, ScreenshotRetentionDays: 30,
		ReplayRetentionDays: 30, AttachmentRetentionDays: 30, ArchivedRetentionDays: 30,
		DataClassification: models.ClassGeneral, ComplianceRegion: models.RegionNone, Tier: models.TierFree,
	}
	mock.ExpectQuery(`SELECT .* FROM retention_policy WHERE project_id = \$1`).
		WithArgs("proj-1").
		WillReturnRows(retentionPolicyRow(policy))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM bug_reports\s+WHERE project_id = \$1`).
		WithArgs("proj-1", sqlmock.AnyArg(), defaultBatchSize).
		WillReturnRows(bugReportRow("bug-1", "proj-1", time.Now().AddDate(0, 0, -60)))
	mock.ExpectExec(`DELETE FROM sessions WHERE bug_report_id = \$1`).
		WithArgs("bug-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM bug_reports WHERE id = \$1`).
		WithArgs("bug-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "retention.apply_batch", "bug_reports", sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "retention.apply", "bug_reports", sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	result, err := engine.Apply(context.Background(), models.RetentionApplyOptions{ProjectID: "proj-1", DryRun: false, Confirm: true}, false)
	require.NoError(t, err)
	require.Equal(t, int64(1), result.TotalDeleted)
	require.Equal(t, 1, result.ProjectsProcessed)
	require.False(t, result.Aborted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_LegalHold(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	mock.ExpectExec(`UPDATE bug_reports SET legal_hold`).
		WithArgs("bug-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, engine.LegalHold(context.Background(), []string{"bug-1"}, true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEngine_Restore(t *testing.T) {
	engine, mock, _ := newTestEngine(t)
	mock.ExpectExec(`UPDATE bug_reports SET deleted_at`).
		WithArgs("bug-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, engine.Restore(context.Background(), []string{"bug-1"}))
	require.NoError(t, mock.ExpectationsWereMet())
}
