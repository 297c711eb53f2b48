// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	historyFile  = "history.json"
	settingsFile = "settings.json"
)

// JSONStore keeps history and settings as two JSON documents in a directory.
// Files are replaced atomically via rename.
type JSONStore struct {
	dir string
	mu  sync.Mutex
}

// NewJSONStore creates dir if needed and returns a store rooted there.
func NewJSONStore(dir string) (*JSONStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("json store requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir %s: %w", dir, err)
	}
	return &JSONStore{dir: dir}, nil
}

func (s *JSONStore) AppendSet(_ context.Context, set SetSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sets []SetSummary
	if err := s.read(historyFile, &sets); err != nil {
		return err
	}
	sets = append([]SetSummary{set}, sets...)
	return s.write(historyFile, sets)
}

func (s *JSONStore) ListSets(_ context.Context) ([]SetSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []SetSummary{}
	if err := s.read(historyFile, &sets); err != nil {
		return nil, err
	}
	if sets == nil {
		sets = []SetSummary{}
	}
	return sets, nil
}

func (s *JSONStore) LoadSettings(_ context.Context) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings Settings
	if err := s.read(settingsFile, &settings); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

func (s *JSONStore) SaveSettings(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(settingsFile, settings)
}

func (s *JSONStore) Close() error { return nil }

// read decodes name into v. A missing or empty file leaves v untouched.
func (s *JSONStore) read(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

func (s *JSONStore) write(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

var _ Store = (*JSONStore)(nil)
