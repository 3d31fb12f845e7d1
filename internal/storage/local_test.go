package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
)

func newTestLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/storage")
	require.NoError(t, err)
	return s
}

func TestLocalStorage_UploadAndGetScreenshot(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	projectID, bugID := uuid.NewString(), uuid.NewString()

	result, err := s.UploadScreenshot(ctx, projectID, bugID, []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "screenshots/"+projectID+"/"+bugID+"/original.png", result.Key)
	assert.Equal(t, "image/png", result.ContentType)

	reader, err := s.GetObject(ctx, result.Key)
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestLocalStorage_UploadRejectsNonUUID(t *testing.T) {
	s := newTestLocalStorage(t)
	_, err := s.UploadScreenshot(context.Background(), "not-a-uuid", uuid.NewString(), []byte("x"))
	require.Error(t, err)
	var valErr *apperrors.StorageError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "STORAGE_VALIDATION_ERROR", valErr.Code)
}

func TestLocalStorage_GetObjectNotFound(t *testing.T) {
	s := newTestLocalStorage(t)
	_, err := s.GetObject(context.Background(), "screenshots/missing/key/original.png")
	require.Error(t, err)
	var notFound *apperrors.StorageError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "STORAGE_NOT_FOUND", notFound.Code)
}

func TestLocalStorage_HeadObjectMissingReturnsNil(t *testing.T) {
	s := newTestLocalStorage(t)
	info, err := s.HeadObject(context.Background(), "nothing/here")
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestLocalStorage_DeleteObjectIsIdempotent(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	projectID, bugID := uuid.NewString(), uuid.NewString()
	result, err := s.UploadAttachment(ctx, projectID, bugID, "report.pdf", []byte("data"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteObject(ctx, result.Key))
	require.NoError(t, s.DeleteObject(ctx, result.Key)) // missing key is still success
}

func TestLocalStorage_UploadAttachmentSanitizesFilename(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	projectID, bugID := uuid.NewString(), uuid.NewString()

	result, err := s.UploadAttachment(ctx, projectID, bugID, "../../etc/passwd", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "attachments/"+projectID+"/"+bugID+"/etcpasswd", result.Key)
}

func TestLocalStorage_UploadAttachmentEmptyFilenameFallsBack(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	projectID, bugID := uuid.NewString(), uuid.NewString()

	result, err := s.UploadAttachment(ctx, projectID, bugID, "../../", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "attachments/"+projectID+"/"+bugID+"/attachment", result.Key)
}

func TestLocalStorage_DeleteFolderRemovesFilesAndEmptyDirs(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	projectID := uuid.NewString()
	bugID1, bugID2 := uuid.NewString(), uuid.NewString()

	_, err := s.UploadScreenshot(ctx, projectID, bugID1, []byte("a"))
	require.NoError(t, err)
	_, err = s.UploadScreenshot(ctx, projectID, bugID2, []byte("b"))
	require.NoError(t, err)

	deleted, err := s.DeleteFolder(ctx, "screenshots/"+projectID)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	info, err := s.HeadObject(ctx, "screenshots/"+projectID+"/"+bugID1+"/original.png")
	require.NoError(t, err)
	assert.Nil(t, info)

	_, statErr := os.Stat(filepath.Join(s.baseDir, "screenshots", projectID))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLocalStorage_ListObjectsPaginates(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	projectID := uuid.NewString()
	for i := 0; i < 5; i++ {
		_, err := s.UploadScreenshot(ctx, projectID, uuid.NewString(), []byte("x"))
		require.NoError(t, err)
	}

	page1, err := s.ListObjects(ctx, ListOptions{Prefix: "screenshots/" + projectID, MaxKeys: 2})
	require.NoError(t, err)
	assert.Len(t, page1.Keys, 2)
	assert.True(t, page1.IsTruncated)
	assert.NotEmpty(t, page1.NextContinuationToken)

	page2, err := s.ListObjects(ctx, ListOptions{
		Prefix:            "screenshots/" + projectID,
		MaxKeys:           2,
		ContinuationToken: page1.NextContinuationToken,
	})
	require.NoError(t, err)
	assert.Len(t, page2.Keys, 2)
}

func TestLocalStorage_GetSignedURLIsBestEffort(t *testing.T) {
	s := newTestLocalStorage(t)
	url, err := s.GetSignedURL(context.Background(), "screenshots/p/b/original.png", SignedURLOptions{ExpiresIn: 0})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/storage/screenshots/p/b/original.png", url)
}

func TestLocalStorage_UploadStreamWritesViaTempFile(t *testing.T) {
	s := newTestLocalStorage(t)
	ctx := context.Background()
	var progressed int64
	result, err := s.UploadStream(ctx, "replays/p/b/chunks/0.json.gz", bytes.NewReader([]byte("chunk-data")), func(n int64) {
		progressed = n
	})
	require.NoError(t, err)
	assert.EqualValues(t, len("chunk-data"), result.Size)
	assert.EqualValues(t, len("chunk-data"), progressed)
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"report.pdf":        "report.pdf",
		"../../etc/passwd":  "etcpasswd",
		"a b/c\\d":          "a_bcd",
		"":                  "attachment",
		"weird$name!.txt":   "weird_name_.txt",
	}
	for input, want := range cases {
		assert.Equal(t, want, sanitizeFilename(input), "input=%q", input)
	}
}
