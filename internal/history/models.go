// SPDX-License-Identifier: MIT

// Package history persists finished sets and the calibration settings that
// survive between runs.
package history

import (
	"emgrep/internal/analysis"
	"emgrep/internal/preset"
	"time"
)

// SetSummary is the immutable record of one finished set. The JSON field
// names are the persisted wire format.
type SetSummary struct {
	ID              string    `json:"id,omitempty"`
	Timestamp       time.Time `json:"ts"`
	Reps            int       `json:"reps"`
	TUTSeconds      float64   `json:"tut"`
	DurationSeconds float64   `json:"dur"`
	AvgV            float64   `json:"avg"`
	PeakV           float64   `json:"peak"`
	MVCV            float64   `json:"mvc"`
	PresetID        string    `json:"presetId,omitempty"`
}

// Settings are the scalars restored on startup: the last selected preset and
// the calibration/threshold values.
type Settings struct {
	PresetID string  `json:"presetId"`
	MVC      float64 `json:"mvc"`
	Hi       float64 `json:"hi"`
	Lo       float64 `json:"lo"`
}

// Thresholds returns the stored threshold pair.
func (s Settings) Thresholds() analysis.Thresholds {
	return analysis.Thresholds{Hi: s.Hi, Lo: s.Lo}
}

// WithDefaults fills anything that was never persisted: the first built-in
// preset, and its threshold pair when none is stored. A zero MVC is kept as
// is.
func (s Settings) WithDefaults() Settings {
	if s.PresetID == "" {
		s.PresetID = preset.Default().ID
	}
	if s.Hi == 0 && s.Lo == 0 {
		s.Hi = analysis.DefaultThresholds.Hi
		s.Lo = analysis.DefaultThresholds.Lo
	}
	if s.MVC < 0 {
		s.MVC = 0
	}
	return s
}
