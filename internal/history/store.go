// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrPersist wraps any failure to write to the backing store. The in-memory
// state is kept when it is returned.
var ErrPersist = errors.New("persist failed")

// Store is a durable backend for set summaries and settings.
type Store interface {
	// AppendSet persists one finished set.
	AppendSet(ctx context.Context, s SetSummary) error
	// ListSets returns every persisted set, most recent first. A store that
	// has never been written returns an empty list.
	ListSets(ctx context.Context) ([]SetSummary, error)
	// LoadSettings returns the stored settings, or the zero value if none.
	LoadSettings(ctx context.Context) (Settings, error)
	// SaveSettings replaces the stored settings.
	SaveSettings(ctx context.Context, s Settings) error
	Close() error
}

// Open returns the store selected by driver: "json" and "sqlite" use path,
// "postgres" uses dsn and "memory" keeps nothing on disk.
func Open(ctx context.Context, driver, path, dsn string) (Store, error) {
	switch driver {
	case "json", "":
		s, err := NewJSONStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// Log is the authoritative in-memory list of finished sets, most recent
// first, mirrored to a Store.
type Log struct {
	mu    sync.RWMutex
	store Store
	sets  []SetSummary

	// wmu serialises writes to store without blocking readers of sets.
	wmu sync.Mutex
	// pending holds sets not yet written to store, oldest first.
	pending []SetSummary
}

// NewLog loads the persisted history from store.
func NewLog(ctx context.Context, store Store) (*Log, error) {
	sets, err := store.ListSets(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return &Log{store: store, sets: sets}, nil
}

// Add prepends s and persists it along with any set an earlier Add failed to
// write, oldest first. On a persistence error the unwritten sets stay in
// memory and are retried on the next Add; the error wraps ErrPersist.
func (l *Log) Add(ctx context.Context, s SetSummary) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()

	l.mu.Lock()
	l.sets = append([]SetSummary{s}, l.sets...)
	l.mu.Unlock()

	l.pending = append(l.pending, s)
	for len(l.pending) > 0 {
		if err := l.store.AppendSet(ctx, l.pending[0]); err != nil {
			return fmt.Errorf("%w: %v (%d sets unsaved)", ErrPersist, err, len(l.pending))
		}
		l.pending = l.pending[1:]
	}
	l.pending = nil
	return nil
}

// Unsaved returns the number of sets held in memory but not yet persisted.
func (l *Log) Unsaved() int {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	return len(l.pending)
}

// List returns a copy of the history, most recent first.
func (l *Log) List() []SetSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]SetSummary, len(l.sets))
	copy(out, l.sets)
	return out
}

// Len returns the number of sets held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.sets)
}

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sets     []SetSummary
	settings Settings
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) AppendSet(_ context.Context, s SetSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = append([]SetSummary{s}, m.sets...)
	return nil
}

func (m *MemoryStore) ListSets(_ context.Context) ([]SetSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SetSummary, len(m.sets))
	copy(out, m.sets)
	return out, nil
}

func (m *MemoryStore) LoadSettings(_ context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *MemoryStore) SaveSettings(_ context.Context, s Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
