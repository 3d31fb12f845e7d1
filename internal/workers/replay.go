package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/gzip"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

// defaultChunkSize is the number of events per chunk when the payload
// doesn't override it.
const defaultChunkSize = 500

// ReplayPayload is queue.Job.Payload for the replays queue.
type ReplayPayload struct {
	BugReportID string `json:"bugReportId"`
	ProjectID   string `json:"projectId"`
	SessionID   string `json:"sessionId"`
	ChunkSize   int    `json:"chunkSize,omitempty"`
}

type replayMetadata struct {
	ChunkCount int   `json:"chunkCount"`
	EventCount int   `json:"eventCount"`
	DurationMs int64 `json:"durationMs"`
}

// ReplayWorker chunks a session's recorded events into fixed-size
// windows, gzip-compresses each, uploads them chunk-by-chunk, and
// writes a metadata object summarizing the result.
type ReplayWorker struct {
	storage  storage.Storage
	sessions *db.SessionRepository
	reports  *db.BugReportRepository
}

// NewReplayWorker builds the replay worker.
func NewReplayWorker(store storage.Storage, sessions *db.SessionRepository, reports *db.BugReportRepository) *ReplayWorker {
	return &ReplayWorker{storage: store, sessions: sessions, reports: reports}
}

// Handle implements queue.Handler.
func (w *ReplayWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload ReplayPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.NewPermanentError(fmt.Errorf("replay worker: decode payload: %w", err))
	}

	session, err := w.sessions.FindByID(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("replay worker: load session: %w", err)
	}
	if session == nil {
		return queue.NewPermanentError(fmt.Errorf("replay worker: session %s not found", payload.SessionID))
	}

	var events []json.RawMessage
	if err := json.Unmarshal(session.Events, &events); err != nil {
		return queue.NewPermanentError(fmt.Errorf("replay worker: decode events: %w", err))
	}

	chunkSize := payload.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	chunkCount, err := w.uploadChunks(ctx, payload.ProjectID, payload.BugReportID, events, chunkSize)
	if err != nil {
		return fmt.Errorf("replay worker: upload chunks: %w", err)
	}

	meta := replayMetadata{
		ChunkCount: chunkCount,
		EventCount: len(events),
		DurationMs: session.DurationMs,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return queue.NewPermanentError(fmt.Errorf("replay worker: marshal metadata: %w", err))
	}

	result, err := w.storage.UploadReplayMetadata(ctx, payload.ProjectID, payload.BugReportID, metaJSON)
	if err != nil {
		return fmt.Errorf("replay worker: upload metadata: %w", err)
	}

	if err := w.sessions.UpdateChunkCount(ctx, payload.SessionID, chunkCount); err != nil {
		return fmt.Errorf("replay worker: update session: %w", err)
	}
	if err := w.reports.SetReplayURL(ctx, payload.BugReportID, result.URL); err != nil {
		return fmt.Errorf("replay worker: update bug report: %w", err)
	}

	logger.Queue().Info().Str("bugReportId", payload.BugReportID).Int("chunks", chunkCount).Msg("replay chunked")
	return nil
}

func (w *ReplayWorker) uploadChunks(ctx context.Context, projectID, bugID string, events []json.RawMessage, chunkSize int) (int, error) {
	chunkCount := 0
	for start := 0; start < len(events); start += chunkSize {
		end := start + chunkSize
		if end > len(events) {
			end = len(events)
		}
		compressed, err := gzipEncode(events[start:end])
		if err != nil {
			return chunkCount, queue.NewPermanentError(err)
		}
		if _, err := w.storage.UploadReplayChunk(ctx, projectID, bugID, chunkCount, compressed); err != nil {
			return chunkCount, err
		}
		chunkCount++
	}
	if chunkCount == 0 {
		// An empty replay still gets a metadata object with chunkCount=0.
		return 0, nil
	}
	return chunkCount, nil
}

func gzipEncode(chunk []json.RawMessage) ([]byte, error) {
	raw, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("marshal chunk: %w", err)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, fmt.Errorf("gzip chunk: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}
