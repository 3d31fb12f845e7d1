package db

import (
	"context"
	"fmt"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// AuditLogRepository is the append-only store for administrative and
// ingestion actions. Rows are never updated; the only path that removes
// them is the retention policy bounded to the longest compliance floor.
type AuditLogRepository struct {
	q Queryer
}

// Append inserts a single audit log row. Callers on the hot ingestion path
// should route through internal/audit's buffered pipeline instead of
// calling this directly.
func (r *AuditLogRepository) Append(ctx context.Context, entry models.AuditLog) error {
	details := entry.Details
	if details.IsNull() {
		details = models.RawJSON("{}")
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (timestamp, user_id, action, resource, resource_id, ip_address, user_agent, success, error_message, details)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, entry.Timestamp, entry.UserID, entry.Action, entry.Resource, entry.ResourceID,
		entry.IPAddress, entry.UserAgent, entry.Success, entry.ErrorMessage, []byte(details))
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// AppendBatch inserts multiple audit rows, the shape the buffered pipeline
// flushes in. Each entry is written by its own Append (one INSERT), in
// order; it stops at the first failure, and entries before it stay
// inserted.
func (r *AuditLogRepository) AppendBatch(ctx context.Context, entries []models.AuditLog) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if err := r.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func scanAuditLog(row interface{ Scan(...interface{}) error }) (*models.AuditLog, error) {
	a := &models.AuditLog{}
	err := row.Scan(&a.ID, &a.Timestamp, &a.UserID, &a.Action, &a.Resource, &a.ResourceID,
		&a.IPAddress, &a.UserAgent, &a.Success, &a.ErrorMessage, &a.Details)
	return a, err
}

// Query returns a filtered, paginated slice of audit log rows, newest first.
func (r *AuditLogRepository) Query(ctx context.Context, filter models.AuditLogFilter, params models.ListParams) ([]*models.AuditLog, models.Pagination, error) {
	if err := validatePagination(params.Page, params.Limit); err != nil {
		return nil, models.Pagination{}, err
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		where += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.Resource != "" {
		args = append(args, filter.Resource)
		where += fmt.Sprintf(" AND resource = $%d", len(args))
	}
	if filter.Success != nil {
		args = append(args, *filter.Success)
		where += fmt.Sprintf(" AND success = $%d", len(args))
	}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	var total int64
	err := withReadRetry(ctx, func() error {
		return r.q.QueryRowContext(ctx, "SELECT count(*) FROM audit_log "+where, args...).Scan(&total)
	})
	if err != nil {
		return nil, models.Pagination{}, apperrors.NewInternalError("db-audit-count", err)
	}

	offset := (params.Page - 1) * params.Limit
	args = append(args, params.Limit, offset)
	query := fmt.Sprintf(`
		SELECT id, timestamp, user_id, action, resource, resource_id, ip_address, user_agent, success, error_message, details
		FROM audit_log %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	var out []*models.AuditLog
	err = withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			a, err := scanAuditLog(rows)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, models.Pagination{}, apperrors.NewInternalError("db-audit-query", err)
	}
	return out, models.NewPagination(params.Page, params.Limit, total), nil
}

// Stats aggregates audit activity for the admin statistics endpoint.
func (r *AuditLogRepository) Stats(ctx context.Context, filter models.AuditLogFilter) (*models.AuditLogStats, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if filter.StartDate != nil {
		args = append(args, *filter.StartDate)
		where += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	if filter.EndDate != nil {
		args = append(args, *filter.EndDate)
		where += fmt.Sprintf(" AND timestamp <= $%d", len(args))
	}

	stats := &models.AuditLogStats{ByAction: map[string]int64{}, ByUser: map[string]int64{}}

	err := withReadRetry(ctx, func() error {
		return r.q.QueryRowContext(ctx, fmt.Sprintf(`
			SELECT count(*), count(*) FILTER (WHERE success), count(*) FILTER (WHERE NOT success)
			FROM audit_log %s
		`, where), args...).Scan(&stats.Total, &stats.SuccessCount, &stats.FailureCount)
	})
	if err != nil {
		return nil, apperrors.NewInternalError("db-audit-stats", err)
	}

	err = withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`SELECT action, count(*) FROM audit_log %s GROUP BY action`, where), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var action string
			var n int64
			if err := rows.Scan(&action, &n); err != nil {
				return err
			}
			stats.ByAction[action] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.NewInternalError("db-audit-stats-action", err)
	}

	err = withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, fmt.Sprintf(`SELECT coalesce(user_id, 'system'), count(*) FROM audit_log %s GROUP BY user_id`, where), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var user string
			var n int64
			if err := rows.Scan(&user, &n); err != nil {
				return err
			}
			stats.ByUser[user] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.NewInternalError("db-audit-stats-user", err)
	}

	return stats, nil
}

// DeleteOlderThan purges audit rows older than cutoffDays days. Nothing
// in the server calls it; the retention scheduler does not purge audit
// rows.
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, cutoffDays int) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM audit_log WHERE timestamp < now() - ($1 || ' days')::interval`, cutoffDays)
	if err != nil {
		return 0, mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
