// SPDX-License-Identifier: MIT
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists history in PostgreSQL.
type PostgresStore struct {
	Pool *pgxpool.Pool
}

// OpenPostgres migrates the database at dsn and connects a pool.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store requires a dsn")
	}
	if err := runMigrations("migrations/postgres", dsn); err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &PostgresStore{Pool: pool}, nil
}

func (s *PostgresStore) AppendSet(ctx context.Context, set SetSummary) error {
	id, err := uuid.Parse(set.ID)
	if err != nil {
		id = uuid.New()
	}
	var presetID *string
	if set.PresetID != "" {
		presetID = &set.PresetID
	}
	_, err = s.Pool.Exec(ctx,
		`INSERT INTO set_summaries (id, ts, reps, tut, dur, avg_v, peak_v, mvc_v, preset_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, set.Timestamp, set.Reps, set.TUTSeconds, set.DurationSeconds,
		set.AvgV, set.PeakV, set.MVCV, presetID)
	if err != nil {
		return fmt.Errorf("inserting set summary: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSets(ctx context.Context) ([]SetSummary, error) {
	rows, err := s.Pool.Query(ctx,
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
			id       uuid.UUID
			presetID *string
		)
		if err := rows.Scan(&id, &r.Timestamp, &r.Reps, &r.TUTSeconds, &r.DurationSeconds,
			&r.AvgV, &r.PeakV, &r.MVCV, &presetID); err != nil {
			return nil, fmt.Errorf("scanning set summary: %w", err)
		}
		r.ID = id.String()
		if presetID != nil {
			r.PresetID = *presetID
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *PostgresStore) LoadSettings(ctx context.Context) (Settings, error) {
	var settings Settings

	err := s.Pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, settingsKeyPreset).
		Scan(&settings.PresetID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, fmt.Errorf("loading preset setting: %w", err)
	}

	var value string
	err = s.Pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, settingsKeyCalibration).
		Scan(&value)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return Settings{}, fmt.Errorf("loading calibration setting: %w", err)
	default:
		if err := decodeCalibration(value, &settings); err != nil {
			return Settings{}, err
		}
	}
	return settings, nil
}

func (s *PostgresStore) SaveSettings(ctx context.Context, settings Settings) error {
	calibration, err := encodeCalibration(settings)
	if err != nil {
		return err
	}

	const upsert = `INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	batch := &pgx.Batch{}
	batch.Queue(upsert, settingsKeyPreset, settings.PresetID)
	batch.Queue(upsert, settingsKeyCalibration, calibration)
	if err := s.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.Pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
