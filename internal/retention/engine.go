package retention

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/models"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

// mustJSON marshals a value built entirely from this package for an
// AuditLog entry's Details column; the inputs are always
// JSON-marshalable primitives, so a marshal error here would mean a
// caller passed something it shouldn't have.
func mustJSON(v interface{}) models.RawJSON {
	b, err := json.Marshal(v)
	if err != nil {
		return models.RawJSON("{}")
	}
	return models.RawJSON(b)
}

const (
	defaultBatchSize    = 100
	maxBatchSize        = 1000
	defaultMaxErrorRate = 5.0
	candidatePageSize   = 500
)

// Engine previews and applies retention policies across every project,
// and handles the two operator escape hatches (legal hold, restore)
// that sit outside the automatic cutoff-driven cycle.
type Engine struct {
	db      *db.Database
	storage storage.Storage
}

// NewEngine builds the retention engine.
func NewEngine(database *db.Database, store storage.Storage) *Engine {
	return &Engine{db: database, storage: store}
}

// resolvedPolicies returns every project's effective policy: one entry
// per project with an explicit RetentionPolicy row, plus the
// global-default policy for every project without one. When projectID
// is non-empty, only that project's policy is resolved.
func (e *Engine) resolvedPolicies(ctx context.Context, projectID string, isAdmin bool) ([]*ResolvedPolicy, error) {
	if projectID != "" {
		policy, err := e.policyForProject(ctx, projectID)
		if err != nil {
			return nil, err
		}
		resolved, err := Resolve(policy, isAdmin)
		if err != nil {
			return nil, err
		}
		return []*ResolvedPolicy{resolved}, nil
	}

	explicit, err := e.db.RetentionPolicies.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	covered := make(map[string]bool, len(explicit))
	out := make([]*ResolvedPolicy, 0, len(explicit))
	for _, p := range explicit {
		covered[p.ProjectID] = true
		resolved, err := Resolve(p, isAdmin)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}

	settings, err := e.db.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return out, nil
	}

	allIDs, err := e.db.Projects.ListAllIDs(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range allIDs {
		if covered[id] {
			continue
		}
		resolved, err := Resolve(DefaultPolicy(id, settings), isAdmin)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (e *Engine) policyForProject(ctx context.Context, projectID string) (*models.RetentionPolicy, error) {
	policy, err := e.db.RetentionPolicies.FindByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if policy != nil {
		return policy, nil
	}
	settings, err := e.db.Settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, apperrors.NewNotFoundError("retention policy")
	}
	return DefaultPolicy(projectID, settings), nil
}

// Preview aggregates how many reports would be affected by applying
// retention right now, without mutating anything. projectID narrows to
// one project; empty covers every project.
func (e *Engine) Preview(ctx context.Context, projectID string, isAdmin bool) (*models.RetentionPreview, error) {
	policies, err := e.resolvedPolicies(ctx, projectID, isAdmin)
	if err != nil {
		return nil, err
	}

	preview := &models.RetentionPreview{}
	for _, p := range policies {
		cutoff := time.Now().AddDate(0, 0, -p.BugReportRetentionDays)
		count, err := e.db.BugReports.CountExpiredByProject(ctx, p.ProjectID, cutoff)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			continue
		}
		preview.TotalReports += count
		preview.AffectedProjects = append(preview.AffectedProjects, p.ProjectID)
		preview.TotalStorageBytes += e.estimateStorageBytes(ctx, p.ProjectID, cutoff, count)
	}
	return preview, nil
}

// estimateStorageBytes samples up to candidatePageSize expired rows'
// screenshot/replay/attachment objects and extrapolates to the full
// count, since HEADing every expired object across a large project
// would make preview too slow to be a read-only, on-demand call.
func (e *Engine) estimateStorageBytes(ctx context.Context, projectID string, cutoff time.Time, total int64) int64 {
	sample, err := e.db.BugReports.FindExpiredByProject(ctx, projectID, cutoff, candidatePageSize)
	if err != nil || len(sample) == 0 {
		return 0
	}
	var sampledBytes int64
	for _, report := range sample {
		sampledBytes += e.reportStorageBytes(ctx, report)
	}
	avg := float64(sampledBytes) / float64(len(sample))
	return int64(avg * float64(total))
}

func (e *Engine) reportStorageBytes(ctx context.Context, report *models.BugReport) int64 {
	var total int64
	if report.ScreenshotURL != nil {
		if info, err := e.storage.HeadObject(ctx, storage.ScreenshotPrefix(report.ProjectID, report.ID)+"original.png"); err == nil && info != nil {
			total += info.Size
		}
		if info, err := e.storage.HeadObject(ctx, storage.ScreenshotPrefix(report.ProjectID, report.ID)+"thumbnail.jpg"); err == nil && info != nil {
			total += info.Size
		}
	}
	if report.ReplayURL != nil {
		if info, err := e.storage.HeadObject(ctx, storage.ReplayPrefix(report.ProjectID, report.ID)+"metadata.json"); err == nil && info != nil {
			total += info.Size
		}
	}
	return total
}

// Apply runs one retention pass: for every covered project, deletes (or
// archives) reports older than the project's effective bug report
// retention window, in batches, aborting if the running error rate
// exceeds opts.MaxErrorRate.
func (e *Engine) Apply(ctx context.Context, opts models.RetentionApplyOptions, isAdmin bool) (*models.RetentionApplyResult, error) {
	if !opts.DryRun && !opts.Confirm {
		return nil, apperrors.NewConfirmationRequiredError()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}
	maxErrorRate := opts.MaxErrorRate
	if maxErrorRate <= 0 {
		maxErrorRate = defaultMaxErrorRate
	}

	start := time.Now()
	result := &models.RetentionApplyResult{}

	policies, err := e.resolvedPolicies(ctx, opts.ProjectID, isAdmin)
	if err != nil {
		return nil, err
	}

	var attempted, failed int

	for _, policy := range policies {
		cutoff := time.Now().AddDate(0, 0, -policy.BugReportRetentionDays)

		if opts.DryRun {
			count, err := e.db.BugReports.CountExpiredByProject(ctx, policy.ProjectID, cutoff)
			if err != nil {
				return nil, err
			}
			if count > 0 {
				result.TotalDeleted += count
				result.ProjectsProcessed++
			}
			continue
		}

		projectTouched := false
		for {
			deleted, freedBytes, batchErrs, processed, err := e.applyBatch(ctx, policy, cutoff, batchSize)
			if err != nil {
				return nil, err
			}
			if processed == 0 {
				break
			}
			projectTouched = true
			attempted += processed
			failed += len(batchErrs)
			result.TotalDeleted += deleted
			result.StorageFreedBytes += freedBytes
			result.Errors = append(result.Errors, batchErrs...)

			if attempted > 0 && 100*float64(failed)/float64(attempted) > maxErrorRate {
				result.Aborted = true
				logger.Retention().Error().
					Str("projectId", policy.ProjectID).
					Int("attempted", attempted).
					Int("failed", failed).
					Msg("retention apply aborted: error rate exceeded")
				result.DurationMs = time.Since(start).Milliseconds()
				e.emitSummary(ctx, policy.ProjectID, result)
				return result, nil
			}
			if processed < batchSize {
				break
			}
		}
		if projectTouched {
			result.ProjectsProcessed++
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	e.emitSummary(ctx, opts.ProjectID, result)
	return result, nil
}

// applyBatch processes at most batchSize expired rows for one project
// inside a single transaction, with FOR UPDATE SKIP LOCKED protecting
// against a concurrent scheduler run or interactive admin action on the
// same rows.
func (e *Engine) applyBatch(ctx context.Context, policy *ResolvedPolicy, cutoff time.Time, batchSize int) (deleted int64, freedBytes int64, errs []string, processed int, err error) {
	txErr := e.db.Transaction(ctx, func(tx *db.Database) error {
		candidates, findErr := tx.BugReports.FindExpiredByProject(ctx, policy.ProjectID, cutoff, batchSize)
		if findErr != nil {
			return findErr
		}
		processed = len(candidates)
		if processed == 0 {
			return nil
		}

		for _, report := range candidates {
			freed, rowErr := e.disposeReport(ctx, tx, policy, report)
			if rowErr != nil {
				errs = append(errs, fmt.Sprintf("report %s: %v", report.ID, rowErr))
				continue
			}
			deleted++
			freedBytes += freed
		}

		entry := models.AuditLog{
			Timestamp: time.Now(),
			Action:    "retention.apply_batch",
			Resource:  "bug_reports",
			Success:   len(errs) == 0,
			Details: mustJSON(map[string]interface{}{
				"projectId":   policy.ProjectID,
				"processed":   processed,
				"deleted":     deleted,
				"freedBytes":  freedBytes,
				"errors":      errs,
			}),
		}
		if auditErr := tx.AuditLogs.Append(ctx, entry); auditErr != nil {
			return fmt.Errorf("append batch audit entry: %w", auditErr)
		}
		return nil
	})
	if txErr != nil {
		return 0, 0, nil, 0, txErr
	}
	return deleted, freedBytes, errs, processed, nil
}

// disposeReport archives or deletes one report's binaries, then removes
// (or moves) its row, per spec's archive-before-delete branch.
func (e *Engine) disposeReport(ctx context.Context, tx *db.Database, policy *ResolvedPolicy, report *models.BugReport) (int64, error) {
	freed := e.reportStorageBytes(ctx, report)

	if policy.ArchiveBeforeDelete {
		if err := tx.RetentionPolicies.ArchiveReport(ctx, report); err != nil {
			return 0, fmt.Errorf("archive row: %w", err)
		}
	}

	if err := e.deleteReportBinaries(ctx, report, policy); err != nil {
		return 0, fmt.Errorf("delete binaries: %w", err)
	}

	if err := tx.Sessions.DeleteByBugReport(ctx, report.ID); err != nil {
		return 0, fmt.Errorf("delete session: %w", err)
	}
	if _, err := tx.BugReports.HardDelete(ctx, report.ID); err != nil {
		return 0, fmt.Errorf("delete row: %w", err)
	}
	return freed, nil
}

// deleteReportBinaries removes a report's objects from storage with
// DeleteFolder: the screenshot and replay prefixes when the report has
// those URLs, and the attachment prefix always. Every region gets the
// same logical delete: RequiresTrueDeletion is not consulted, no
// overwrite takes place, and the deleted-object counts are discarded.
func (e *Engine) deleteReportBinaries(ctx context.Context, report *models.BugReport, policy *ResolvedPolicy) error {
	if report.ScreenshotURL != nil {
		if _, err := e.storage.DeleteFolder(ctx, storage.ScreenshotPrefix(report.ProjectID, report.ID)); err != nil {
			return err
		}
	}
	if report.ReplayURL != nil {
		if _, err := e.storage.DeleteFolder(ctx, storage.ReplayPrefix(report.ProjectID, report.ID)); err != nil {
			return err
		}
	}
	if _, err := e.storage.DeleteFolder(ctx, storage.AttachmentPrefix(report.ProjectID, report.ID)); err != nil {
		return err
	}
	return nil
}

func (e *Engine) emitSummary(ctx context.Context, projectID string, result *models.RetentionApplyResult) {
	entry := models.AuditLog{
		Timestamp: time.Now(),
		Action:    "retention.apply",
		Resource:  "bug_reports",
		Success:   !result.Aborted,
		Details: mustJSON(map[string]interface{}{
			"projectId":         projectID,
			"totalDeleted":      result.TotalDeleted,
			"storageFreedBytes": result.StorageFreedBytes,
			"projectsProcessed": result.ProjectsProcessed,
			"durationMs":        result.DurationMs,
			"errors":            result.Errors,
			"aborted":           result.Aborted,
		}),
	}
	if err := e.db.AuditLogs.Append(ctx, entry); err != nil {
		logger.Retention().Error().Err(err).Msg("failed to append retention summary audit entry")
	}
}

// LegalHold sets or clears the legal hold flag on a set of reports.
// Admin-only; enforced by the caller (the handler layer), not here.
func (e *Engine) LegalHold(ctx context.Context, reportIDs []string, hold bool) error {
	for _, id := range reportIDs {
		if err := e.db.BugReports.SetLegalHold(ctx, id, hold); err != nil {
			return fmt.Errorf("legal hold %s: %w", id, err)
		}
	}
	return nil
}

// Restore clears deleted_at for soft-deleted rows still present in
// bug_reports. Rows already moved to archived_bug_reports are gone from
// this table entirely and are not restorable via this path.
func (e *Engine) Restore(ctx context.Context, reportIDs []string) error {
	for _, id := range reportIDs {
		if err := e.db.BugReports.Restore(ctx, id); err != nil {
			return fmt.Errorf("restore %s: %w", id, err)
		}
	}
	return nil
}
