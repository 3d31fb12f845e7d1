package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/models"
)

// SessionRepository is the C1 repository for session-replay rows. Each
// row stores the recorded events as a JSON array together with the chunk
// count and summary counters; the replay worker reads the events from the
// row and writes the compressed chunks to object storage.
type SessionRepository struct {
	q Queryer
}

func scanSession(row interface{ Scan(...interface{}) error }) (*models.Session, error) {
	s := &models.Session{}
	err := row.Scan(&s.ID, &s.BugReportID, &s.Events, &s.DurationMs, &s.ChunkCount, &s.EventCount, &s.CreatedAt)
	return s, err
}

// Create inserts a session-replay record for a bug report.
func (r *SessionRepository) Create(ctx context.Context, bugReportID string, payload models.SessionReplayPayload, durationMs int64) (*models.Session, error) {
	events, err := eventsToRawJSON(payload.RecordedEvents)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid session events payload")
	}

	s := &models.Session{
		ID:          uuid.New().String(),
		BugReportID: bugReportID,
		Events:      events,
		DurationMs:  durationMs,
		ChunkCount:  1,
		EventCount:  len(payload.RecordedEvents),
		CreatedAt:   time.Now(),
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO sessions (id, bug_report_id, events, duration_ms, chunk_count, event_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.ID, s.BugReportID, []byte(s.Events), s.DurationMs, s.ChunkCount, s.EventCount, s.CreatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return s, nil
}

// FindByID returns a session by id, or nil if not found.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var s *models.Session
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, `
			SELECT id, bug_report_id, events, duration_ms, chunk_count, event_count, created_at
			FROM sessions WHERE id = $1
		`, id)
		var scanErr error
		s, scanErr = scanSession(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-session-find", err)
	}
	return s, nil
}

// FindByBugReport returns the session replay attached to a bug report, or
// nil if the report has none (a report can capture a screenshot without a
// replay).
func (r *SessionRepository) FindByBugReport(ctx context.Context, bugReportID string) (*models.Session, error) {
	var s *models.Session
	err := withReadRetry(ctx, func() error {
		row := r.q.QueryRowContext(ctx, `
			SELECT id, bug_report_id, events, duration_ms, chunk_count, event_count, created_at
			FROM sessions WHERE bug_report_id = $1
		`, bugReportID)
		var scanErr error
		s, scanErr = scanSession(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewInternalError("db-session-find-report", err)
	}
	return s, nil
}

// UpdateChunkCount records the number of chunks the replay worker wrote
// to object storage once chunking completes.
func (r *SessionRepository) UpdateChunkCount(ctx context.Context, id string, chunkCount int) error {
	_, err := r.q.ExecContext(ctx, `UPDATE sessions SET chunk_count = $2 WHERE id = $1`, id, chunkCount)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

// Delete removes a session row (its event chunks in object storage are
// removed separately by the caller).
func (r *SessionRepository) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, mapWriteError(err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteByBugReport removes all session rows belonging to a bug report,
// used by the retention engine's hard-delete path.
func (r *SessionRepository) DeleteByBugReport(ctx context.Context, bugReportID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE bug_report_id = $1`, bugReportID)
	if err != nil {
		return mapWriteError(err)
	}
	return nil
}

func eventsToRawJSON(events []models.RawJSON) (models.RawJSON, error) {
	if len(events) == 0 {
		return models.RawJSON("[]"), nil
	}
	parts := make([][]byte, len(events))
	for i, e := range events {
		if e.IsNull() {
			parts[i] = []byte("null")
			continue
		}
		parts[i] = []byte(e)
	}
	out := []byte("[")
	for i, p := range parts {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, p...)
	}
	out = append(out, ']')
	return models.RawJSON(out), nil
}
