// Package storage provides a single object-storage capability surface
// with two interchangeable backends: a local filesystem implementation
// for development and single-node installs, and an S3-compatible
// implementation for production. Both use the same canonical key
// scheme, so a project's objects can be migrated between backends
// without touching the rows that reference them.
package storage

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UploadResult is returned by every upload operation.
type UploadResult struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
}

// ObjectInfo is returned by HeadObject.
type ObjectInfo struct {
	Size         int64
	LastModified time.Time
}

// ListOptions constrains ListObjects.
type ListOptions struct {
	Prefix            string
	MaxKeys           int
	ContinuationToken string
}

// ListResult is one page of ListObjects.
type ListResult struct {
	Keys                  []string
	NextContinuationToken string
	IsTruncated           bool
}

// SignedURLOptions configures GetSignedURL.
type SignedURLOptions struct {
	ExpiresIn                  time.Duration
	ResponseContentType        string
	ResponseContentDisposition string
}

// ProgressFunc is invoked periodically during UploadStream with the
// number of bytes written so far.
type ProgressFunc func(bytesWritten int64)

// Storage is the capability surface both backends implement.
type Storage interface {
	UploadScreenshot(ctx context.Context, projectID, bugID string, data []byte) (*UploadResult, error)
	UploadThumbnail(ctx context.Context, projectID, bugID string, data []byte) (*UploadResult, error)
	UploadReplayMetadata(ctx context.Context, projectID, bugID string, metadata []byte) (*UploadResult, error)
	UploadReplayChunk(ctx context.Context, projectID, bugID string, chunkIndex int, data []byte) (*UploadResult, error)
	UploadAttachment(ctx context.Context, projectID, bugID, filename string, data []byte) (*UploadResult, error)

	GetObject(ctx context.Context, key string) (io.ReadCloser, error)
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)
	DeleteObject(ctx context.Context, key string) error
	DeleteFolder(ctx context.Context, prefix string) (int, error)
	ListObjects(ctx context.Context, opts ListOptions) (*ListResult, error)
	GetSignedURL(ctx context.Context, key string, opts SignedURLOptions) (string, error)
	UploadStream(ctx context.Context, key string, r io.Reader, progress ProgressFunc) (*UploadResult, error)
}

// Canonical key scheme. Identical across backends so a bug report row's
// stored keys are portable between local and S3.
func screenshotKey(projectID, bugID string) string  { return fmt.Sprintf("screenshots/%s/%s/original.png", projectID, bugID) }
func thumbnailKey(projectID, bugID string) string   { return fmt.Sprintf("screenshots/%s/%s/thumbnail.jpg", projectID, bugID) }
func replayMetaKey(projectID, bugID string) string  { return fmt.Sprintf("replays/%s/%s/metadata.json", projectID, bugID) }
func attachmentKey(projectID, bugID, filename string) string {
	return fmt.Sprintf("attachments/%s/%s/%s", projectID, bugID, sanitizeFilename(filename))
}

func replayChunkKey(projectID, bugID string, chunkIndex int) string {
	return fmt.Sprintf("replays/%s/%s/chunks/%d.json.gz", projectID, bugID, chunkIndex)
}

// ScreenshotPrefix, ReplayPrefix and AttachmentPrefix return the folder
// prefix holding all objects for one bug report in each category, for
// callers (the retention engine) that need to delete a report's entire
// object tree via DeleteFolder without reaching into this package's
// internal key-naming functions.
func ScreenshotPrefix(projectID, bugID string) string { return fmt.Sprintf("screenshots/%s/%s/", projectID, bugID) }
func ReplayPrefix(projectID, bugID string) string     { return fmt.Sprintf("replays/%s/%s/", projectID, bugID) }
func AttachmentPrefix(projectID, bugID string) string { return fmt.Sprintf("attachments/%s/%s/", projectID, bugID) }

var nonFilenameChar = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeFilename removes path-traversal sequences and separators and
// collapses any remaining disallowed character to "_". An empty result
// falls back to "attachment".
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "..", "")
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, "\\", "")
	name = nonFilenameChar.ReplaceAllString(name, "_")
	if name == "" {
		return "attachment"
	}
	return name
}

// validateIDs rejects non-UUID projectID/bugID before they are
// interpolated into a storage key, closing the path-traversal vector at
// the one point both backends share.
func validateIDs(projectID, bugID string) error {
	if _, err := uuid.Parse(projectID); err != nil {
		return fmt.Errorf("storage: invalid projectId %q", projectID)
	}
	if _, err := uuid.Parse(bugID); err != nil {
		return fmt.Errorf("storage: invalid bugId %q", bugID)
	}
	return nil
}
