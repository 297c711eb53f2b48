// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"emgrep/internal/analysis"
	"emgrep/internal/history"
	"emgrep/internal/preset"
	"fmt"
)

// ApplyPreset selects a preset and adopts its thresholds. The change takes
// effect from the next processed window.
func (e *Engine) ApplyPreset(ctx context.Context, id string) (preset.Preset, error) {
	p, err := preset.Lookup(id)
	if err != nil {
		return preset.Preset{}, err
	}
	err = e.updateSettings(ctx, func(s *history.Settings) {
		s.PresetID = p.ID
		s.Hi, s.Lo = p.Hi, p.Lo
	})
	if err != nil {
		return p, err
	}
	e.logger.Info("preset applied", "preset", p.ID, "hi", p.Hi, "lo", p.Lo)
	return p, nil
}

// SetThresholds overrides the hi/lo pair. Invalid pairs are rejected before
// they reach the gate.
func (e *Engine) SetThresholds(ctx context.Context, th analysis.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	err := e.updateSettings(ctx, func(s *history.Settings) {
		s.Hi, s.Lo = th.Hi, th.Lo
	})
	if err != nil {
		return err
	}
	e.logger.Info("thresholds set", "hi", th.Hi, "lo", th.Lo)
	return nil
}

// updateSettings mutates settings on the Run goroutine and persists them. A
// persistence failure keeps the new in-memory settings.
func (e *Engine) updateSettings(ctx context.Context, mutate func(*history.Settings)) error {
	var saveErr error
	if err := e.do(ctx, func() {
		mutate(&e.settings)
		saveErr = e.store.SaveSettings(ctx, e.settings)
		e.publishStatus()
	}); err != nil {
		return err
	}
	if saveErr != nil {
		return fmt.Errorf("%w: saving settings: %v", history.ErrPersist, saveErr)
	}
	return nil
}
