package db

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/models"
)

func newTestReportRepo(t *testing.T) (*BugReportRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &BugReportRepository{q: sqlDB}, mock
}

func TestBugReportRepository_CreateBatchIsSingleStatement(t *testing.T) {
	repo, mock := newTestReportRepo(t)

	mock.ExpectExec(`INSERT INTO bug_reports .* VALUES \(.*\),\(.*\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.CreateBatch(context.Background(), []CreateParams{
		{ProjectID: "proj-1", Title: "first"},
		{ProjectID: "proj-1", Title: "second"},
	})
	require.NoError(t, err)
	// A single ExpectExec was registered above; ExpectationsWereMet fails
	// if CreateBatch instead issued one round trip per row.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBugReportRepository_CreateBatchRejectsOversized(t *testing.T) {
	repo, mock := newTestReportRepo(t)

	reports := make([]CreateParams, maxBatchSize+1)
	for i := range reports {
		reports[i] = CreateParams{ProjectID: "proj-1", Title: "x"}
	}

	err := repo.CreateBatch(context.Background(), reports)
	require.Error(t, err)
	// No statement should have been issued at all.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBugReportRepository_CreateBatchEmptyIsNoop(t *testing.T) {
	repo, mock := newTestReportRepo(t)

	err := repo.CreateBatch(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBugReportRepository_CreateBatchDefaultsClassAndStatus(t *testing.T) {
	repo, mock := newTestReportRepo(t)

	mock.ExpectExec(`INSERT INTO bug_reports`).
		WithArgs(sqlmock.AnyArg(), "proj-1", "only", nil, models.StatusOpen, models.PriorityMedium,
			nil, nil, sqlmock.AnyArg(), false, models.ClassGeneral, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateBatch(context.Background(), []CreateParams{{ProjectID: "proj-1", Title: "only"}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
