package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/apexbridge-tech/bugspotter/internal/apperrors"
	"github.com/apexbridge-tech/bugspotter/internal/logger"
)

// LocalStorage stores objects as files under BaseDir, named by the
// canonical key with '/' mapped to the OS path separator.
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage creates baseDir if absent and probes it for
// writability with a throwaway .health-check file.
func NewLocalStorage(baseDir, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apperrors.NewStorageConnectionError(fmt.Errorf("create base dir: %w", err))
	}
	probe := filepath.Join(baseDir, ".health-check")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return nil, apperrors.NewStorageConnectionError(fmt.Errorf("write health-check probe: %w", err))
	}
	_ = os.Remove(probe)
	return &LocalStorage{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalStorage) path(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}

func (s *LocalStorage) publicURL(key string) string {
	return s.baseURL + "/" + key
}

func (s *LocalStorage) writeFile(key string, data []byte, contentType string) (*UploadResult, error) {
	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, apperrors.NewStorageUploadError(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return nil, apperrors.NewStorageUploadError(err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return nil, apperrors.NewStorageUploadError(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, apperrors.NewStorageUploadError(err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return nil, apperrors.NewStorageUploadError(err)
	}
	return &UploadResult{Key: key, URL: s.publicURL(key), Size: int64(len(data)), ContentType: contentType}, nil
}

func (s *LocalStorage) UploadScreenshot(_ context.Context, projectID, bugID string, data []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.writeFile(screenshotKey(projectID, bugID), data, "image/png")
}

func (s *LocalStorage) UploadThumbnail(_ context.Context, projectID, bugID string, data []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.writeFile(thumbnailKey(projectID, bugID), data, "image/jpeg")
}

func (s *LocalStorage) UploadReplayMetadata(_ context.Context, projectID, bugID string, metadata []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.writeFile(replayMetaKey(projectID, bugID), metadata, "application/json")
}

func (s *LocalStorage) UploadReplayChunk(_ context.Context, projectID, bugID string, chunkIndex int, data []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.writeFile(replayChunkKey(projectID, bugID, chunkIndex), data, "application/gzip")
}

func (s *LocalStorage) UploadAttachment(_ context.Context, projectID, bugID, filename string, data []byte) (*UploadResult, error) {
	if err := validateIDs(projectID, bugID); err != nil {
		return nil, apperrors.NewStorageValidationError(err.Error())
	}
	return s.writeFile(attachmentKey(projectID, bugID, filename), data, "application/octet-stream")
}

func (s *LocalStorage) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if os.IsNotExist(err) {
		return nil, apperrors.NewStorageNotFoundError(key)
	}
	if err != nil {
		return nil, apperrors.NewStorageConnectionError(err)
	}
	return f, nil
}

func (s *LocalStorage) HeadObject(_ context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageConnectionError(err)
	}
	return &ObjectInfo{Size: info.Size(), LastModified: info.ModTime()}, nil
}

func (s *LocalStorage) DeleteObject(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return apperrors.NewStorageConnectionError(err)
	}
	return nil
}

// DeleteFolder walks prefix depth-first, removing files then the empty
// directories left behind.
func (s *LocalStorage) DeleteFolder(_ context.Context, prefix string) (int, error) {
	root := s.path(prefix)
	deleted := 0
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.NewStorageConnectionError(err)
	}
	if !info.IsDir() {
		if err := os.Remove(root); err != nil {
			return 0, apperrors.NewStorageConnectionError(err)
		}
		return 1, nil
	}

	err = filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}
		if rmErr := os.Remove(path); rmErr != nil {
			return rmErr
		}
		deleted++
		return nil
	})
	if err != nil {
		return deleted, apperrors.NewStorageConnectionError(err)
	}
	if err := removeEmptyDirs(root); err != nil {
		logger.Storage().Warn().Err(err).Str("prefix", prefix).Msg("failed to clean up empty directories")
	}
	return deleted, nil
}

func removeEmptyDirs(root string) error {
	var dirs []string
	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, dir := range dirs {
		os.Remove(dir) // ignore error: non-empty directories are left in place
	}
	return nil
}

func (s *LocalStorage) ListObjects(_ context.Context, opts ListOptions) (*ListResult, error) {
	root := s.path(opts.Prefix)
	var keys []string
	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, apperrors.NewStorageConnectionError(err)
	}
	sort.Strings(keys)

	start := 0
	if opts.ContinuationToken != "" {
		if n, err := strconv.Atoi(opts.ContinuationToken); err == nil {
			start = n
		}
	}
	if start > len(keys) {
		start = len(keys)
	}
	end := len(keys)
	truncated := false
	if opts.MaxKeys > 0 && start+opts.MaxKeys < end {
		end = start + opts.MaxKeys
		truncated = true
	}

	result := &ListResult{Keys: keys[start:end], IsTruncated: truncated}
	if truncated {
		result.NextContinuationToken = strconv.Itoa(end)
	}
	return result, nil
}

// GetSignedURL returns the object's public URL. Local storage has no
// real signing mechanism, so expiry/response overrides are best-effort:
// they're appended as query parameters a reverse proxy could honor, but
// are not cryptographically enforced.
func (s *LocalStorage) GetSignedURL(_ context.Context, key string, opts SignedURLOptions) (string, error) {
	u := s.publicURL(key)
	values := url.Values{}
	if opts.ExpiresIn > 0 {
		values.Set("expires", strconv.FormatInt(time.Now().Add(opts.ExpiresIn).Unix(), 10))
	}
	if opts.ResponseContentType != "" {
		values.Set("response-content-type", opts.ResponseContentType)
	}
	if opts.ResponseContentDisposition != "" {
		values.Set("response-content-disposition", opts.ResponseContentDisposition)
	}
	if len(values) == 0 {
		return u, nil
	}
	return u + "?" + values.Encode(), nil
}

func (s *LocalStorage) UploadStream(_ context.Context, key string, r io.Reader, progress ProgressFunc) (*UploadResult, error) {
	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, apperrors.NewStorageUploadError(err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return nil, apperrors.NewStorageUploadError(err)
	}
	tmpName := tmp.Name()

	var written int64
	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, werr := tmp.Write(buf[:n]); werr != nil {
				tmp.Close()
				os.Remove(tmpName)
				return nil, apperrors.NewStorageUploadError(werr)
			}
			written += int64(n)
			if progress != nil {
				progress(written)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmp.Close()
			os.Remove(tmpName)
			return nil, apperrors.NewStorageUploadError(readErr)
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, apperrors.NewStorageUploadError(err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return nil, apperrors.NewStorageUploadError(err)
	}
	return &UploadResult{Key: key, URL: s.publicURL(key), Size: written}, nil
}
