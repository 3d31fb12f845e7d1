package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// BugReportRepository is the C1 repository for the central BugSpotter
// artifact. Reads exclude soft-deleted rows unless IncludeDeleted is set.
type BugReportRepository struct {
	q Queryer
}

const bugReportColumns = `id, project_id, title, description, status, priority, screenshot_url, replay_url, metadata, legal_hold, retention_class, deleted_at, deleted_by, created_at, updated_at`

func scanBugReport(row interface{ Scan(...interface{}) error }) (*models.BugReport, error) {
	b := &models.BugReport{}
	err := row.Scan(&b.ID, &b.ProjectID, &b.Title, &b.Description, &b.Status, &b.Priority,
		&b.ScreenshotURL, &b.ReplayURL, &b.Metadata, &b.LegalHold, &b.RetentionClass,
		&b.DeletedAt, &b.DeletedBy, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

// CreateParams is the internal argument to Create. The ingestion handler
// builds it before any screenshot or replay is stored, so it leaves
// ScreenshotURL and ReplayURL nil.
type CreateParams struct {
	ProjectID      string
	Title          string
	Description    string
	Metadata       models.RawJSON
	ScreenshotURL  *string
	ReplayURL      *string
	RetentionClass models.RetentionClass
}

// Create inserts a new bug report with status=open, priority=medium.
func (r *BugReportRepository) Create(ctx context.Context, in CreateParams) (*models.BugReport, error) {
	class := in.RetentionClass
	if class == "" {
		class = models.ClassGeneral
	}
	var desc *string
	if in.Description != "" {
		desc = &in.Description
	}
	metadata := in.Metadata
	if metadata.IsNull() {
		metadata = models.RawJSON("{}")
	}

	b := &models.BugReport{
		ID:             uuid.New().String(),
		ProjectID:      in.ProjectID,
		Title:          in.Title,
		Description:    desc,
		Status:         models.StatusOpen,
		Priority:       models.PriorityMedium,
		ScreenshotURL:  in.ScreenshotURL,
		ReplayURL:      in.ReplayURL,
		Metadata:       metadata,
		RetentionClass: class,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO bug_reports (id, project_id, title, description, status, priority, screenshot_url, replay_url, metadata, legal_hold, retention_class, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, b.ID, b.ProjectID, b.Title, b.Description, b.Status, b.Priority, b.ScreenshotURL, b.ReplayURL,
		[]byte(b.Metadata), b.LegalHold, b.RetentionClass, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return b, nil
}

// FindByID returns a bug report by id. Soft-deleted rows are excluded
// unless includeDeleted is true (the retention restore path needs them).
func (r *BugReportRepository) FindByID(ctx context.Context, id string, includeDeleted bool) (*models.BugReport, error) {
	query := fmt.Sprintf(`SELECT %s FROM bug_reports WHERE id = $1`, bugReportColumns)
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}

	var b *models.BugReport
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, query, id)
		var scanErr error
		b, scanErr = scanBugReport(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-report-find", err)
	}
	return b, nil
}

// Update applies a partial update to a bug report's triage fields.
func (r *BugReportRepository) Update(ctx context.Context, id string, in models.BugReportUpdate) (*models.BugReport, error) {
	existing, err := r.FindByID(ctx, id, false)
	if err != nil || existing == nil {
		return existing, err
	}
	if in.Title != nil {
		existing.Title = *in.Title
	}
	if in.Description != nil {
		existing.Description = in.Description
	}
	if in.Status != nil {
		existing.Status = *in.Status
	}
	if in.Priority != nil {
		existing.Priority = *in.Priority
	}
	if in.RetentionClass != nil {
		existing.RetentionClass = *in.RetentionClass
	}
	existing.UpdatedAt = time.Now()

	_, err = r.q.ExecContext(ctx, `
		UPDATE bug_reports SET title=$2, description=$3, status=$4, priority=$5, retention_class=$6, updated_at=$7
		WHERE id = $1 AND deleted_at IS NULL
	`, existing.ID, existing.Title, existing.Description, existing.Status, existing.Priority, existing.RetentionClass, existing.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return existing, nil
}

// SetScreenshotURL records the thumbnail URL the screenshot worker
// produced. screenshot_url holds the thumbnail, not the original —
// handlers serve the original straight from storage by its fixed key.
func (r *BugReportRepository) SetScreenshotURL(ctx context.Context, id, thumbnailURL string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE bug_reports SET screenshot_url = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, thumbnailURL)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// SetReplayURL records the replay metadata URL the replay worker
// produced once chunking and upload finish.
func (r *BugReportRepository) SetReplayURL(ctx context.Context, id, replayURL string) error {
	_, err := r.q.ExecContext(ctx, `UPDATE bug_reports SET replay_url = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, replayURL)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// SetLegalHold flips the legal_hold flag, exempting the report from
// automated retention deletion while held=true.
func (r *BugReportRepository) SetLegalHold(ctx context.Context, id string, held bool) error {
	res, err := r.q.ExecContext(ctx, `UPDATE bug_reports SET legal_hold = $2, updated_at = now() WHERE id = $1`, id, held)
	if err != nil {
		return mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("bug report")
	}
	return nil
}

// SoftDelete marks a report deleted without removing the row, recording
// who deleted it and when.
func (r *BugReportRepository) SoftDelete(ctx context.Context, id, deletedBy string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE bug_reports SET deleted_at = now(), deleted_by = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, deletedBy)
	if err != nil {
		return mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("bug report")
	}
	return nil
}

// Restore clears a soft-delete, used by the restore endpoints. No limit
// on how long ago the report was deleted is applied.
func (r *BugReportRepository) Restore(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE bug_reports SET deleted_at = NULL, deleted_by = NULL, updated_at = now()
		WHERE id = $1 AND deleted_at IS NOT NULL
	`, id)
	if err != nil {
		return mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("bug report")
	}
	return nil
}

// HardDelete permanently removes a bug report row. The caller is
// responsible for removing its screenshot/replay objects and session rows
// first (or within the same transaction).
func (r *BugReportRepository) HardDelete(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM bug_reports WHERE id = $1`, id)
	if err != nil {
		return false, mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// List returns a page of bug reports for a project, filterable by status
// and priority, soft-deleted rows excluded.
func (r *BugReportRepository) List(ctx context.Context, projectID string, params models.ListParams) ([]*models.BugReport, models.Pagination, error) {
	if err := validatePagination(params.Page, params.Limit); err != nil {
		return nil, models.Pagination{}, err
	}
	orderBy, err := normalizeSort(params.SortBy, params.SortOrder, "created_at")
	if err != nil {
		return nil, models.Pagination{}, err
	}

	where := "WHERE project_id = $1 AND deleted_at IS NULL"
	args := []interface{}{projectID}
	if status, ok := params.Filters["status"]; ok && status != "" {
		args = append(args, status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if priority, ok := params.Filters["priority"]; ok && priority != "" {
		args = append(args, priority)
		where += fmt.Sprintf(" AND priority = $%d", len(args))
	}

	var total int64
	err = withReadRetry(ctx, func() error {
		return r.q.QueryRowContext(ctx, "SELECT count(*) FROM bug_reports "+where, args...).Scan(&total)
	})
	if err != nil {
		return nil, models.Pagination{}, apperrors.NewInternalError("db-report-count", err)
	}

	offset := (params.Page - 1) * params.Limit
	args = append(args, params.Limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM bug_reports %s ORDER BY %s LIMIT $%d OFFSET $%d`,
		bugReportColumns, where, orderBy, len(args)-1, len(args))

	var out []*models.BugReport
	err = withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			b, err := scanBugReport(rows)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, models.Pagination{}, apperrors.NewInternalError("db-report-list", err)
	}
	return out, models.NewPagination(params.Page, params.Limit, total), nil
}

// FindExpiredCandidates returns reports eligible for retention processing:
// not on legal hold, of the given class, older than cutoff, not already
// deleted, across all projects. The retention engine does not call it;
// it works per project through FindExpiredByProject.
func (r *BugReportRepository) FindExpiredCandidates(ctx context.Context, class models.RetentionClass, cutoff time.Time, limit int) ([]*models.BugReport, error) {
	var out []*models.BugReport
	err := withReadRetry(ctx, func() error {
		query := fmt.Sprintf(`
			SELECT %s FROM bug_reports
			WHERE retention_class = $1 AND legal_hold = false AND deleted_at IS NULL AND created_at < $2
			ORDER BY created_at ASC LIMIT $3
		`, bugReportColumns)
		rows, err := r.q.QueryContext(ctx, query, class, cutoff, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			b, err := scanBugReport(rows)
			if err != nil {
				return err
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.NewInternalError("db-report-find-expired", err)
	}
	return out, nil
}

// FindExpiredByProject returns a project's reports eligible for retention
// processing: not on legal hold, older than cutoff, not already deleted.
// Rows lock with FOR UPDATE SKIP LOCKED so a concurrent scheduler run (or
// an interactive admin action on the same rows) never double-processes
// a row; callers must hold a transaction for the lock to have effect.
func (r *BugReportRepository) FindExpiredByProject(ctx context.Context, projectID string, cutoff time.Time, limit int) ([]*models.BugReport, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bug_reports
		WHERE project_id = $1 AND legal_hold = false AND deleted_at IS NULL AND created_at < $2
		ORDER BY created_at ASC LIMIT $3 FOR UPDATE SKIP LOCKED
	`, bugReportColumns)
	rows, err := r.q.QueryContext(ctx, query, projectID, cutoff, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("db-report-find-expired-project", err)
	}
	defer rows.Close()
	var out []*models.BugReport
	for rows.Next() {
		b, err := scanBugReport(rows)
		if err != nil {
			return nil, apperrors.NewInternalError("db-report-find-expired-project", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("db-report-find-expired-project", err)
	}
	return out, nil
}

// CountExpiredByProject is the read-only counterpart to
// FindExpiredByProject used by the retention preview, which never takes
// row locks since it never mutates anything.
func (r *BugReportRepository) CountExpiredByProject(ctx context.Context, projectID string, cutoff time.Time) (int64, error) {
	var count int64
	err := withReadRetry(ctx, func() error {
		return r.q.QueryRowContext(ctx, `
			SELECT count(*) FROM bug_reports
			WHERE project_id = $1 AND legal_hold = false AND deleted_at IS NULL AND created_at < $2
		`, projectID, cutoff).Scan(&count)
	})
	if err != nil {
		return 0, apperrors.NewInternalError("db-report-count-expired-project", err)
	}
	return count, nil
}

// reportInsertColumns is bugReportColumns minus the columns Create leaves
// at their table default (deleted_at, deleted_by) — CreateBatch inserts
// exactly these per row.
const reportInsertColumns = `id, project_id, title, description, status, priority, screenshot_url, replay_url, metadata, legal_hold, retention_class, created_at, updated_at`

// CreateBatch inserts up to 1000 reports in a single multi-row INSERT,
// rejecting anything larger; callers needing more use CreateBatchAuto. One
// statement means one round trip and all-or-nothing atomicity: a
// constraint violation on any row fails the whole batch with nothing
// committed, rather than leaving earlier rows already inserted.
func (r *BugReportRepository) CreateBatch(ctx context.Context, reports []CreateParams) error {
	if err := validateBatchSize(len(reports)); err != nil {
		return err
	}
	if len(reports) == 0 {
		return nil
	}

	const cols = 13
	args := make([]interface{}, 0, len(reports)*cols)
	placeholders := make([]string, 0, len(reports))
	now := time.Now()

	for i, in := range reports {
		class := in.RetentionClass
		if class == "" {
			class = models.ClassGeneral
		}
		var desc *string
		if in.Description != "" {
			desc = &in.Description
		}
		metadata := in.Metadata
		if metadata.IsNull() {
			metadata = models.RawJSON("{}")
		}

		base := i * cols
		ph := make([]string, cols)
		for j := 0; j < cols; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")

		args = append(args,
			uuid.New().String(), in.ProjectID, in.Title, desc, models.StatusOpen, models.PriorityMedium,
			in.ScreenshotURL, in.ReplayURL, []byte(metadata), false, class, now, now)
	}

	query := fmt.Sprintf(`INSERT INTO bug_reports (%s) VALUES %s`, reportInsertColumns, strings.Join(placeholders, ","))
	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		return mapWriteError(err)
	}
	return nil
}

// CreateBatchAuto chunks an arbitrarily large slice into sub-batches of at
// most 1000 rows each, applying every chunk in order.
func (r *BugReportRepository) CreateBatchAuto(ctx context.Context, reports []CreateParams) error {
	for _, span := range chunkIndices(len(reports), maxBatchSize) {
		if err := r.CreateBatch(ctx, reports[span[0]:span[1]]); err != nil {
			return err
		}
	}
	return nil
}
