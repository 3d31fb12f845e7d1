package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
)

func sessionRows(id, bugReportID string, events []byte, duration int64, chunkCount, eventCount int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "bug_report_id", "events", "duration_ms", "chunk_count", "event_count", "created_at"}).
		AddRow(id, bugReportID, events, duration, chunkCount, eventCount, time.Now())
}

func TestReplayWorker_ChunksEventsAndUploadsMetadata(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	database := db.NewDatabaseForTesting(sqlDB)

	events := make([]json.RawMessage, 1200)
	for i := range events {
		events[i] = json.RawMessage(`{"type":"mouse"}`)
	}
	eventsJSON, err := json.Marshal(events)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, bug_report_id, events, duration_ms, chunk_count, event_count, created_at\s+FROM sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(sessionRows("sess-1", "bug-1", eventsJSON, 45000, 1, len(events)))

	mock.ExpectExec(`UPDATE sessions SET chunk_count`).
		WithArgs("sess-1", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`UPDATE bug_reports SET replay_url`).
		WithArgs("bug-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := newFakeStorage()
	worker := NewReplayWorker(store, database.Sessions, database.BugReports)

	payload, err := json.Marshal(ReplayPayload{
		BugReportID: "bug-1",
		ProjectID:   "proj-1",
		SessionID:   "sess-1",
	})
	require.NoError(t, err)

	job := &queue.Job{ID: "job-1", Queue: queue.Replays, Payload: payload}
	require.NoError(t, worker.Handle(context.Background(), job))

	metaRaw, err := store.GetObject(context.Background(), "replays/proj-1/bug-1/metadata.json")
	require.NoError(t, err)
	var meta replayMetadata
	require.NoError(t, json.NewDecoder(metaRaw).Decode(&meta))
	require.Equal(t, 3, meta.ChunkCount)
	require.Equal(t, len(events), meta.EventCount)
	require.Equal(t, int64(45000), meta.DurationMs)

	for i := 0; i < 3; i++ {
		_, err := store.GetObject(context.Background(), "replays/proj-1/bug-1/chunks/"+strconv.Itoa(i)+".json.gz")
		require.NoError(t, err)
	}

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplayWorker_RespectsCustomChunkSize(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	database := db.NewDatabaseForTesting(sqlDB)

	events := make([]json.RawMessage, 10)
	for i := range events {
		events[i] = json.RawMessage(`{"type":"click"}`)
	}
	eventsJSON, err := json.Marshal(events)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, bug_report_id, events, duration_ms, chunk_count, event_count, created_at\s+FROM sessions WHERE id = \$1`).
		WithArgs("sess-2").
		WillReturnRows(sessionRows("sess-2", "bug-2", eventsJSON, 1000, 1, len(events)))

	mock.ExpectExec(`UPDATE sessions SET chunk_count`).
		WithArgs("sess-2", 5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bug_reports SET replay_url`).
		WithArgs("bug-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := newFakeStorage()
	worker := NewReplayWorker(store, database.Sessions, database.BugReports)

	payload, err := json.Marshal(ReplayPayload{
		BugReportID: "bug-2",
		ProjectID:   "proj-1",
		SessionID:   "sess-2",
		ChunkSize:   2,
	})
	require.NoError(t, err)

	job := &queue.Job{ID: "job-2", Queue: queue.Replays, Payload: payload}
	require.NoError(t, worker.Handle(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplayWorker_MissingSessionIsPermanent(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	database := db.NewDatabaseForTesting(sqlDB)

	mock.ExpectQuery(`SELECT id, bug_report_id, events, duration_ms, chunk_count, event_count, created_at\s+FROM sessions WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	worker := NewReplayWorker(newFakeStorage(), database.Sessions, database.BugReports)
	payload, _ := json.Marshal(ReplayPayload{BugReportID: "bug-3", ProjectID: "proj-1", SessionID: "missing"})
	job := &queue.Job{ID: "job-3", Queue: queue.Replays, Payload: payload}

	err = worker.Handle(context.Background(), job)
	require.Error(t, err)
	var permErr *queue.PermanentError
	require.ErrorAs(t, err, &permErr)
}
