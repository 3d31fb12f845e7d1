package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/db"
	"github.com/apexbridge-tech/bugspotter/internal/queue"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestScreenshotWorker_GeneratesThumbnail(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	database := db.NewDatabaseForTesting(sqlDB)

	store := newFakeStorage()
	store.put("screenshots/proj-1/bug-1/original.png", testPNG(t, 400, 300))

	mock.ExpectExec(`UPDATE bug_reports SET screenshot_url`).
		WithArgs("bug-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	worker := NewScreenshotWorker(store, database.BugReports)

	payload, err := json.Marshal(ScreenshotPayload{
		BugReportID: "bug-1",
		ProjectID:   "proj-1",
		StorageKey:  "screenshots/proj-1/bug-1/original.png",
	})
	require.NoError(t, err)

	job := &queue.Job{ID: "job-1", Queue: queue.Screenshots, Payload: payload}
	require.NoError(t, worker.Handle(context.Background(), job))

	thumb, err := store.GetObject(context.Background(), "screenshots/proj-1/bug-1/thumbnail.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(thumb)
	require.NoError(t, err)
	decoded, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.LessOrEqual(t, decoded.Bounds().Dx(), thumbnailSize)
	require.LessOrEqual(t, decoded.Bounds().Dy(), thumbnailSize)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScreenshotWorker_BadImageIsPermanent(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	database := db.NewDatabaseForTesting(sqlDB)

	store := newFakeStorage()
	store.put("screenshots/proj-1/bug-2/original.png", []byte("not an image"))

	worker := NewScreenshotWorker(store, database.BugReports)

	payload, _ := json.Marshal(ScreenshotPayload{
		BugReportID: "bug-2",
		ProjectID:   "proj-1",
		StorageKey:  "screenshots/proj-1/bug-2/original.png",
	})
	job := &queue.Job{ID: "job-2", Queue: queue.Screenshots, Payload: payload}

	err = worker.Handle(context.Background(), job)
	require.Error(t, err)
	var permErr *queue.PermanentError
	require.ErrorAs(t, err, &permErr)
}

func TestScreenshotWorker_BadPayloadIsPermanent(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	database := db.NewDatabaseForTesting(sqlDB)

	worker := NewScreenshotWorker(newFakeStorage(), database.BugReports)
	job := &queue.Job{ID: "job-3", Queue: queue.Screenshots, Payload: []byte("{not json")}

	err = worker.Handle(context.Background(), job)
	require.Error(t, err)
	var permErr *queue.PermanentError
	require.ErrorAs(t, err, &permErr)
}
