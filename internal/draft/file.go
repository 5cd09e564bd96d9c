package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	// DefaultDirPermissions is used when creating the store directory.
	DefaultDirPermissions = 0o755

	lockRetryDelay = 10 * time.Millisecond
)

// FileStore keeps one JSON file per key under a directory. Writes hold an exclusive
// lock on "<file>.lock" and replace the file atomically.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(opts ...Option) (*FileStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("draft directory not set")
	}
	if err := os.MkdirAll(cfg.DSN, DefaultDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create draft directory: %w", err)
	}
	slog.Debug("NewFileStore: directory ready", "dir", cfg.DSN)
	return &FileStore{dir: cfg.DSN}, nil
}

// path maps a key to a file name; separators in keys become underscores.
func (s *FileStore) path(key string) string {
	name := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(key)
	return filepath.Join(s.dir, name+".json")
}

func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read draft %s: %w", key, err)
	}
	return data, nil
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	path := s.path(key)
	return s.withLock(ctx, path, func() error {
		return atomicWrite(path, value)
	})
}

func (s *FileStore) Remove(ctx context.Context, key string) error {
	path := s.path(key)
	return s.withLock(ctx, path, func() error {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove draft %s: %w", key, err)
		}
		return nil
	})
}

func (s *FileStore) withLock(ctx context.Context, path string, fn func() error) error {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", path, err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire lock on %s", path)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("FileStore.withLock: unlock failed", "path", path, "error", err)
		}
	}()
	return fn()
}

// atomicWrite writes to a temp file in the target directory and renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	tmp = nil
	return nil
}
