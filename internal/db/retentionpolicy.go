package db

import (
	"context"
	"database/sql"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// RetentionPolicyRepository stores per-project overrides of the global
// retention defaults. One row per project; Upsert replaces it wholesale.
type RetentionPolicyRepository struct {
	q Queryer
}

func scanRetentionPolicy(row interface{ Scan(...interface{}) error }) (*models.RetentionPolicy, error) {
	p := &models.RetentionPolicy{}
	err := row.Scan(&p.ProjectID, &p.BugReportRetentionDays, &p.ScreenshotRetentionDays,
		&p.ReplayRetentionDays, &p.AttachmentRetentionDays, &p.ArchivedRetentionDays,
		&p.ArchiveBeforeDelete, &p.DataClassification, &p.ComplianceRegion, &p.Tier)
	return p, err
}

const retentionPolicyColumns = `project_id, bug_report_retention_days, screenshot_retention_days, replay_retention_days, attachment_retention_days, archived_retention_days, archive_before_delete, data_classification, compliance_region, tier`

// Upsert creates or replaces a project's retention policy.
func (r *RetentionPolicyRepository) Upsert(ctx context.Context, projectID string, in models.RetentionPolicyUpsert) (*models.RetentionPolicy, error) {
	p := &models.RetentionPolicy{
		ProjectID:               projectID,
		BugReportRetentionDays:  in.BugReportRetentionDays,
		ScreenshotRetentionDays: in.ScreenshotRetentionDays,
		ReplayRetentionDays:     in.ReplayRetentionDays,
		AttachmentRetentionDays: in.AttachmentRetentionDays,
		ArchivedRetentionDays:   in.ArchivedRetentionDays,
		ArchiveBeforeDelete:     in.ArchiveBeforeDelete,
		DataClassification:      in.DataClassification,
		ComplianceRegion:        in.ComplianceRegion,
		Tier:                    in.Tier,
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO retention_policy (project_id, bug_report_retention_days, screenshot_retention_days, replay_retention_days, attachment_retention_days, archived_retention_days, archive_before_delete, data_classification, compliance_region, tier)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (project_id) DO UPDATE SET
			bug_report_retention_days = EXCLUDED.bug_report_retention_days,
			screenshot_retention_days = EXCLUDED.screenshot_retention_days,
			replay_retention_days = EXCLUDED.replay_retention_days,
			attachment_retention_days = EXCLUDED.attachment_retention_days,
			archived_retention_days = EXCLUDED.archived_retention_days,
			archive_before_delete = EXCLUDED.archive_before_delete,
			data_classification = EXCLUDED.data_classification,
			compliance_region = EXCLUDED.compliance_region,
			tier = EXCLUDED.tier
	`, p.ProjectID, p.BugReportRetentionDays, p.ScreenshotRetentionDays, p.ReplayRetentionDays,
		p.AttachmentRetentionDays, p.ArchivedRetentionDays, p.ArchiveBeforeDelete,
		p.DataClassification, p.ComplianceRegion, p.Tier)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return p, nil
}

// FindByProject returns a project's retention policy, or nil if it has
// none configured (the global default then applies).
func (r *RetentionPolicyRepository) FindByProject(ctx context.Context, projectID string) (*models.RetentionPolicy, error) {
	var p *models.RetentionPolicy
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, "SELECT "+retentionPolicyColumns+" FROM retention_policy WHERE project_id = $1", projectID)
		var scanErr error
		p, scanErr = scanRetentionPolicy(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-retention-policy-find", err)
	}
	return p, nil
}

// ListAll returns every configured retention policy, used by the nightly
// scheduler to build its work plan.
func (r *RetentionPolicyRepository) ListAll(ctx context.Context) ([]*models.RetentionPolicy, error) {
	var out []*models.RetentionPolicy
	err := withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, "SELECT "+retentionPolicyColumns+" FROM retention_policy ORDER BY project_id")
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			p, err := scanRetentionPolicy(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.NewInternalError("db-retention-policy-list", err)
	}
	return out, nil
}

// Delete removes a project's override, falling back it to global defaults.
func (r *RetentionPolicyRepository) Delete(ctx context.Context, projectID string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM retention_policy WHERE project_id = $1`, projectID)
	if err != nil {
		return false, mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ArchiveReport moves a bug report's summary into cold storage ahead of
// its hard delete, when the policy's ArchiveBeforeDelete is set.
func (r *RetentionPolicyRepository) ArchiveReport(ctx context.Context, report *models.BugReport) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO archived_bug_reports (id, project_id, title, description, metadata, retention_class, archived_at, original_created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),$7)
		ON CONFLICT (id) DO NOTHING
	`, report.ID, report.ProjectID, report.Title, report.Description, []byte(report.Metadata), report.RetentionClass, report.CreatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}
