// Package workers holds the two processing workers registered on the
// queue runtime: screenshots (thumbnail generation) and replays (event
// chunking). Both are thin adapters between a queue.Job payload and the
// storage/db layers — the actual image and compression work is small
// enough to stay in this package rather than its own.
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

const (
	thumbnailSize    = 200
	thumbnailQuality = 80
)

// ScreenshotPayload is queue.Job.Payload for the screenshots queue.
type ScreenshotPayload struct {
	BugReportID string `json:"bugReportId"`
	ProjectID   string `json:"projectId"`
	StorageKey  string `json:"storageKey"`
}

// ScreenshotWorker fetches an uploaded screenshot, generates a
// 200x200 aspect-preserving JPEG thumbnail with EXIF/GPS stripped (the
// re-encode through image.Image naturally drops EXIF, since Go's image
// decoders don't retain it), and records the thumbnail URL.
type ScreenshotWorker struct {
	storage storage.Storage
	reports *db.BugReportRepository
}

// NewScreenshotWorker builds the screenshot worker.
func NewScreenshotWorker(store storage.Storage, reports *db.BugReportRepository) *ScreenshotWorker {
	return &ScreenshotWorker{storage: store, reports: reports}
}

// Handle implements queue.Handler.
func (w *ScreenshotWorker) Handle(ctx context.Context, job *queue.Job) error {
	var payload ScreenshotPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.NewPermanentError(fmt.Errorf("screenshot worker: decode payload: %w", err))
	}

	reader, err := w.storage.GetObject(ctx, payload.StorageKey)
	if err != nil {
		return fmt.Errorf("screenshot worker: fetch original: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("screenshot worker: read original: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return queue.NewPermanentError(fmt.Errorf("screenshot worker: decode image: %w", err))
	}

	thumb := resize.Thumbnail(thumbnailSize, thumbnailSize, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return queue.NewPermanentError(fmt.Errorf("screenshot worker: encode thumbnail: %w", err))
	}

	result, err := w.storage.UploadThumbnail(ctx, payload.ProjectID, payload.BugReportID, buf.Bytes())
	if err != nil {
		return fmt.Errorf("screenshot worker: upload thumbnail: %w", err)
	}

	if err := w.reports.SetScreenshotURL(ctx, payload.BugReportID, result.URL); err != nil {
		return fmt.Errorf("screenshot worker: update bug report: %w", err)
	}

	logger.Queue().Info().Str("bugReportId", payload.BugReportID).Msg("thumbnail generated")
	return nil
}
