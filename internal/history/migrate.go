// SPDX-License-Identifier: MIT
package history

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Settings are kept as two key/value rows in SQL stores.
const (
	settingsKeyPreset      = "preset"
	settingsKeyCalibration = "calibration"
)

// calibrationRecord is the JSON value stored under settingsKeyCalibration.
type calibrationRecord struct {
	MVC float64 `json:"mvc"`
	Hi  float64 `json:"hi"`
	Lo  float64 `json:"lo"`
}

func encodeCalibration(s Settings) (string, error) {
	b, err := json.Marshal(calibrationRecord{MVC: s.MVC, Hi: s.Hi, Lo: s.Lo})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCalibration(value string, s *Settings) error {
	var rec calibrationRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return fmt.Errorf("parsing calibration settings: %w", err)
	}
	s.MVC, s.Hi, s.Lo = rec.MVC, rec.Hi, rec.Lo
	return nil
}

// runMigrations applies the embedded migrations in dir to the database at url.
func runMigrations(dir, url string) error {
	src, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
