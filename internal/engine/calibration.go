// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"emgrep/internal/analysis"
	"emgrep/internal/history"
	"fmt"
	"time"
)

// Calibrate captures a maximum voluntary contraction for the configured
// duration and raises the stored MVC to the observed peak when it is higher.
// It reads a copy of the live stream through a tap, so the live window and
// gate are untouched. The merged MVC is returned even when persisting it
// fails.
func (e *Engine) Calibrate(ctx context.Context) (float64, error) {
	return e.CalibrateFor(ctx, e.opts.CalibrationDuration)
}

// CalibrateFor is Calibrate with an explicit capture duration.
func (e *Engine) CalibrateFor(ctx context.Context, duration time.Duration) (float64, error) {
	calibrator, err := analysis.NewMVCCalibrator(e.pipeline.WindowSize())
	if err != nil {
		return 0, err
	}

	tap := make(chan []float64, e.opts.QueueSize)
	var connErr error
	if err := e.do(ctx, func() {
		if !e.connected.Load() {
			connErr = ErrNotConnected
			return
		}
		e.taps[tap] = struct{}{}
	}); err != nil {
		return 0, err
	}
	if connErr != nil {
		return 0, connErr
	}

	e.logger.Info("calibration started", "duration", duration)
	observed := calibrator.Calibrate(ctx, duration, tap)

	var (
		before, after float64
		saveErr       error
	)
	// The tap is removed and the result merged even when ctx was cancelled.
	ctx = context.WithoutCancel(ctx)
	if err := e.do(ctx, func() {
		delete(e.taps, tap)
		before = e.settings.MVC
		e.settings.MVC = analysis.MergeMVC(before, observed)
		after = e.settings.MVC
		saveErr = e.store.SaveSettings(ctx, e.settings)
		e.publishStatus()
	}); err != nil {
		return 0, err
	}

	e.logger.Info("calibration finished", "observed", observed, "windows", calibrator.Windows(),
		"previous", before, "mvc", after)
	if saveErr != nil {
		return after, fmt.Errorf("%w: saving calibration: %v", history.ErrPersist, saveErr)
	}
	return after, nil
}
