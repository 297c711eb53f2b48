// SPDX-License-Identifier: MIT

// Package preset holds the built-in exercise presets. Presets are immutable
// configuration records: a threshold pair for the rep gate and the target
// set-duration band.
package preset

import (
	"emgrep/internal/analysis"
	"errors"
	"fmt"
)

// ErrUnknownPreset is returned by Lookup for an id that is not built in.
var ErrUnknownPreset = errors.New("unknown preset")

// Preset describes one exercise profile.
type Preset struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Hi           float64 `json:"hi"`
	Lo           float64 `json:"lo"`
	TargetMinSec float64 `json:"targetDurationMinSec"`
	TargetMaxSec float64 `json:"targetDurationMaxSec"`
}

// Thresholds returns the preset's gate thresholds.
func (p Preset) Thresholds() analysis.Thresholds {
	return analysis.Thresholds{Hi: p.Hi, Lo: p.Lo}
}

// Target classifies a finished set duration against the preset band.
type Target string

const (
	TargetShort    Target = "short"
	TargetOnTarget Target = "on-target"
	TargetLong     Target = "long"
)

// Classify reports whether durationSec falls below, inside or above the band.
func (p Preset) Classify(durationSec float64) Target {
	switch {
	case durationSec < p.TargetMinSec:
		return TargetShort
	case durationSec > p.TargetMaxSec:
		return TargetLong
	default:
		return TargetOnTarget
	}
}

var builtin = []Preset{
	{ID: "general", Name: "General", Hi: 0.6, Lo: 0.3, TargetMinSec: 30, TargetMaxSec: 60},
	{ID: "strength", Name: "Strength", Hi: 0.7, Lo: 0.35, TargetMinSec: 10, TargetMaxSec: 30},
	{ID: "hypertrophy", Name: "Hypertrophy", Hi: 0.5, Lo: 0.25, TargetMinSec: 40, TargetMaxSec: 70},
	{ID: "endurance", Name: "Endurance", Hi: 0.4, Lo: 0.2, TargetMinSec: 60, TargetMaxSec: 120},
}

// All returns a copy of the built-in presets in display order.
func All() []Preset {
	out := make([]Preset, len(builtin))
	copy(out, builtin)
	return out
}

// Default returns the first built-in preset.
func Default() Preset {
	return builtin[0]
}

// Lookup returns the preset with the given id.
func Lookup(id string) (Preset, error) {
	for _, p := range builtin {
		if p.ID == id {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
}
