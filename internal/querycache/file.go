package querycache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileBackend keeps the document in a local file guarded by an advisory
// lock on a sibling ".lock" file. Processes sharing the path share the cache.
type FileBackend struct {
	path       string
	lockPath   string
	retryDelay time.Duration
}

// NewFileBackend returns a backend for the document at path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{
		path:       path,
		lockPath:   path + ".lock",
		retryDelay: 10 * time.Millisecond,
	}
}

// Lock takes the exclusive file lock, retrying until ctx ends. Each call
// opens its own lock handle, so goroutines in one process exclude each other
// the same way separate processes do.
func (b *FileBackend) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	fl := flock.New(b.lockPath)
	locked, err := fl.TryLockContext(ctx, b.retryDelay)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, errors.New("file lock not acquired")
	}
	return fl.Unlock, nil
}

// Read returns the document bytes, or nil if the file does not exist yet.
func (b *FileBackend) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// Write replaces the document atomically: a reader never observes a
// partially written file.
func (b *FileBackend) Write(_ context.Context, data []byte) error {
	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, b.path)
}
