package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// TicketRepository stores opaque references to external tracker issues
// (Jira, Linear, GitHub) linked to a bug report. BugSpotter never talks to
// the tracker API itself; a ticket row is a pointer, nothing more.
type TicketRepository struct {
	q Queryer
}

func scanTicket(row interface{ Scan(...interface{}) error }) (*models.Ticket, error) {
	t := &models.Ticket{}
	err := row.Scan(&t.ID, &t.BugReportID, &t.ExternalID, &t.Platform, &t.Status, &t.CreatedAt)
	return t, err
}

// Create links a new external ticket to a bug report.
func (r *TicketRepository) Create(ctx context.Context, bugReportID string, in models.TicketCreate) (*models.Ticket, error) {
	t := &models.Ticket{
		ID:          uuid.New().String(),
		BugReportID: bugReportID,
		ExternalID:  in.ExternalID,
		Platform:    in.Platform,
		Status:      in.Status,
		CreatedAt:   time.Now(),
	}
	if t.Status == "" {
		t.Status = "open"
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tickets (id, bug_report_id, external_id, platform, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.BugReportID, t.ExternalID, t.Platform, t.Status, t.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return t, nil
}

// FindByBugReport returns every ticket linked to a bug report.
func (r *TicketRepository) FindByBugReport(ctx context.Context, bugReportID string) ([]*models.Ticket, error) {
	var out []*models.Ticket
	err := withReadRetry(ctx, func() error {
		rows, err := r.q.QueryContext(ctx, `
			SELECT id, bug_report_id, external_id, platform, status, created_at
			FROM tickets WHERE bug_report_id = $1 ORDER BY created_at ASC
		`, bugReportID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = nil
		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				return err
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.NewInternalError("db-ticket-find-report", err)
	}
	return out, nil
}

// FindByID returns a ticket by id, or nil if not found.
func (r *TicketRepository) FindByID(ctx context.Context, id string) (*models.Ticket, error) {
	var t *models.Ticket
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, `
			SELECT id, bug_report_id, external_id, platform, status, created_at
			FROM tickets WHERE id = $1
		`, id)
		var scanErr error
		t, scanErr = scanTicket(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-ticket-find", err)
	}
	return t, nil
}

// UpdateStatus updates a ticket's tracked status (e.g. when synced from
// the external tracker by an operator-triggered refresh).
func (r *TicketRepository) UpdateStatus(ctx context.Context, id, status string) error {
	res, err := r.q.ExecContext(ctx, `UPDATE tickets SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.NewNotFoundError("ticket")
	}
	return nil
}

// Delete removes a ticket link.
func (r *TicketRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return false, mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
