// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// failingStore accepts reads but rejects every write.
type failingStore struct {
	MemoryStore
}

func (f *failingStore) AppendSet(context.Context, SetSummary) error {
	return errors.New("disk full")
}

// flakyStore rejects the next failures writes and then behaves like a
// MemoryStore.
type flakyStore struct {
	MemoryStore
	failures int
}

func (f *flakyStore) AppendSet(ctx context.Context, s SetSummary) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	return f.MemoryStore.AppendSet(ctx, s)
}

// storeFactories lists every backend that can run without external services.
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"json": func(t *testing.T) Store {
			s, err := NewJSONStore(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
}

func TestStoresStartEmpty(t *testing.T) {
	ctx := context.Background()
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			sets, err := s.ListSets(ctx)
			if err != nil {
				t.Fatalf("ListSets: %v", err)
			}
			if len(sets) != 0 {
				t.Errorf("fresh store has %d sets", len(sets))
			}
			settings, err := s.LoadSettings(ctx)
			if err != nil {
				t.Fatalf("LoadSettings: %v", err)
			}
			if settings != (Settings{}) {
				t.Errorf("fresh store settings = %+v", settings)
			}
		})
	}
}

func TestStoresRoundTripMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			for i := 1; i <= 3; i++ {
				if err := s.AppendSet(ctx, sampleSet(i)); err != nil {
					t.Fatalf("AppendSet(%d): %v", i, err)
				}
			}
			sets, err := s.ListSets(ctx)
			if err != nil {
				t.Fatalf("ListSets: %v", err)
			}
			if len(sets) != 3 {
				t.Fatalf("got %d sets, want 3", len(sets))
			}
			for i, got := range sets {
				assertSameSet(t, got, sampleSet(3-i))
			}
		})
	}
}

func TestStoresSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	want := Settings{PresetID: "hypertrophy", MVC: 0.8125, Hi: 0.55, Lo: 0.25}
	for name, open := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			if err := s.SaveSettings(ctx, Settings{PresetID: "general"}); err != nil {
				t.Fatal(err)
			}
			if err := s.SaveSettings(ctx, want); err != nil {
				t.Fatal(err)
			}
			got, err := s.LoadSettings(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if got != want {
				t.Errorf("LoadSettings() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestLogAddPrependsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.AppendSet(ctx, sampleSet(1))

	l, err := NewLog(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Add(ctx, sampleSet(2)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if l.Len() != 2 || l.List()[0].Reps != sampleSet(2).Reps {
		t.Errorf("List() = %+v, want newest first", l.List())
	}
	persisted, _ := store.ListSets(ctx)
	if len(persisted) != 2 {
		t.Errorf("store holds %d sets, want 2", len(persisted))
	}
}

func TestLogKeepsMemoryOnPersistFailure(t *testing.T) {
	ctx := context.Background()
	l, err := NewLog(ctx, &failingStore{})
	if err != nil {
		t.Fatal(err)
	}

	err = l.Add(ctx, sampleSet(1))
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("Add error = %v, want ErrPersist", err)
	}
	if l.Len() != 1 {
		t.Errorf("in-memory history lost the set after a failed persist")
	}
}

func TestLogWritesBackloggedSetsAfterRecovery(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{failures: 1}
	l, err := NewLog(ctx, store)
	if err != nil {
		t.Fatal(err)
	}

	if err := l.Add(ctx, sampleSet(1)); !errors.Is(err, ErrPersist) {
		t.Fatalf("first Add error = %v, want ErrPersist", err)
	}
	if l.Unsaved() != 1 {
		t.Fatalf("Unsaved() = %d after failed write, want 1", l.Unsaved())
	}
	if err := l.Add(ctx, sampleSet(2)); err != nil {
		t.Fatalf("second Add: %v", err)
	}
	if l.Unsaved() != 0 {
		t.Errorf("Unsaved() = %d after recovery, want 0", l.Unsaved())
	}

	persisted, _ := store.ListSets(ctx)
	if len(persisted) != 2 {
		t.Fatalf("store holds %d sets, want 2", len(persisted))
	}
	assertSameSet(t, persisted[0], sampleSet(2))
	assertSameSet(t, persisted[1], sampleSet(1))

	reloaded, err := NewLog(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != l.Len() {
		t.Errorf("reloaded history has %d sets, in-memory has %d", reloaded.Len(), l.Len())
	}
}

func TestOpenFailureReturnsNilStore(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		driver string
		path   string
	}{
		{"json", ""},
		{"postgres", ""},
		{"csv", t.TempDir()},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			s, err := Open(ctx, tt.driver, tt.path, "")
			if err == nil {
				t.Fatalf("Open(%q) succeeded, want error", tt.driver)
			}
			if s != nil {
				t.Errorf("Open(%q) store = %#v, want nil interface", tt.driver, s)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		driver  string
		path    string
		wantErr bool
	}{
		{"memory", "", false},
		{"json", dir, false},
		{"", dir, false},
		{"sqlite", filepath.Join(dir, "h.db"), false},
		{"postgres", "", true},
		{"csv", dir, true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			s, err := Open(ctx, tt.driver, tt.path, "")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open(%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
			if s != nil {
				s.Close()
			}
		})
	}
}
