package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/apexbridge-tech/bugspotter/internal/storage"
)

// fakeStorage is an in-memory storage.Storage for worker tests, so they
// exercise the upload/fetch contract without a filesystem or network.
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) put(key string, data []byte) *storage.UploadResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return &storage.UploadResult{Key: key, URL: "http://storage.local/" + key, Size: int64(len(data))}
}

func (f *fakeStorage) UploadScreenshot(_ context.Context, projectID, bugID string, data []byte) (*storage.UploadResult, error) {
	return f.put(fmt.Sprintf("screenshots/%s/%s/original.png", projectID, bugID), data), nil
}

func (f *fakeStorage) UploadThumbnail(_ context.Context, projectID, bugID string, data []byte) (*storage.UploadResult, error) {
	return f.put(fmt.Sprintf("screenshots/%s/%s/thumbnail.jpg", projectID, bugID), data), nil
}

func (f *fakeStorage) UploadReplayMetadata(_ context.Context, projectID, bugID string, metadata []byte) (*storage.UploadResult, error) {
	return f.put(fmt.Sprintf("replays/%s/%s/metadata.json", projectID, bugID), metadata), nil
}

func (f *fakeStorage) UploadReplayChunk(_ context.Context, projectID, bugID string, chunkIndex int, data []byte) (*storage.UploadResult, error) {
	return f.put(fmt.Sprintf("replays/%s/%s/chunks/%d.json.gz", projectID, bugID, chunkIndex), data), nil
}

func (f *fakeStorage) UploadAttachment(_ context.Context, projectID, bugID, filename string, data []byte) (*storage.UploadResult, error) {
	return f.put(fmt.Sprintf("attachments/%s/%s/%s", projectID, bugID, filename), data), nil
}

func (f *fakeStorage) GetObject(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("fakeStorage: object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) HeadObject(_ context.Context, key string) (*storage.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, nil
	}
	return &storage.ObjectInfo{Size: int64(len(data))}, nil
}

func (f *fakeStorage) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeStorage) DeleteFolder(_ context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(f.objects, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStorage) ListObjects(_ context.Context, opts storage.ListOptions) (*storage.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	return &storage.ListResult{Keys: keys}, nil
}

func (f *fakeStorage) GetSignedURL(_ context.Context, key string, _ storage.SignedURLOptions) (string, error) {
	return "http://storage.local/" + key, nil
}

func (f *fakeStorage) UploadStream(_ context.Context, key string, r io.Reader, _ storage.ProgressFunc) (*storage.UploadResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return f.put(key, data), nil
}
