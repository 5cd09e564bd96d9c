// Package draft persists the in-progress assessment and schedules debounced autosaves.
//
// It provides the Store interface with memory, file and SQLite backends, the snapshot
// codec that accepts both the current and the legacy stored shapes, and the Autosaver.
package draft

import (
	"context"
	"slices"
	"sync"
)

// Key is the fixed store key of the single in-progress draft.
const Key = "assessment:draft:v1"

// Store is a key-value byte store. Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Option configures a store constructor.
type Option func(*Opts)

// Opts holds store settings.
type Opts struct {
	DSN string // file path for SQLite, directory for FileStore
}

// WithDSN sets the database path or directory.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(v), nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = slices.Clone(value)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
