// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// sqliteTime is fixed width so timestamps stay sortable as text.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore persists history in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir %s: %w", dir, err)
		}
	}
	if err := runMigrations("migrations/sqlite", "sqlite://"+path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// A single connection serialises writers.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AppendSet(ctx context.Context, set SetSummary) error {
	if set.ID == "" {
		set.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO set_summaries (id, ts, reps, tut, dur, avg_v, peak_v, mvc_v, preset_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		set.ID, set.Timestamp.UTC().Format(sqliteTime), set.Reps, set.TUTSeconds,
		set.DurationSeconds, set.AvgV, set.PeakV, set.MVCV, nullString(set.PresetID))
	if err != nil {
		return fmt.Errorf("inserting set summary: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSets(ctx context.Context) ([]SetSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, reps, tut, dur, avg_v, peak_v, mvc_v, preset_id
		 FROM set_summaries ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying set summaries: %w", err)
	}
	defer rows.Close()

	result := []SetSummary{}
	for rows.Next() {
		var (
			r        SetSummary
			ts       string
			presetID sql.NullString
		)
		if err := rows.Scan(&r.ID, &ts, &r.Reps, &r.TUTSeconds, &r.DurationSeconds,
			&r.AvgV, &r.PeakV, &r.MVCV, &presetID); err != nil {
			return nil, fmt.Errorf("scanning set summary: %w", err)
		}
		if r.Timestamp, err = time.Parse(sqliteTime, ts); err != nil {
			return nil, fmt.Errorf("parsing set timestamp %q: %w", ts, err)
		}
		r.PresetID = presetID.String
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) LoadSettings(ctx context.Context) (Settings, error) {
	var settings Settings

	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingsKeyPreset).
		Scan(&settings.PresetID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Settings{}, fmt.Errorf("loading preset setting: %w", err)
	}

	var value string
	err = s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, settingsKeyCalibration).
		Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Settings{}, fmt.Errorf("loading calibration setting: %w", err)
	default:
		if err := decodeCalibration(value, &settings); err != nil {
			return Settings{}, err
		}
	}
	return settings, nil
}

func (s *SQLiteStore) SaveSettings(ctx context.Context, settings Settings) error {
	calibration, err := encodeCalibration(settings)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting settings tx: %w", err)
	}
	defer tx.Rollback()

	const upsert = `INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`
	if _, err := tx.ExecContext(ctx, upsert, settingsKeyPreset, settings.PresetID); err != nil {
		return fmt.Errorf("saving preset setting: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, settingsKeyCalibration, calibration); err != nil {
		return fmt.Errorf("saving calibration setting: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

var _ Store = (*SQLiteStore)(nil)
