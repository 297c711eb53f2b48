// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"time"
)

// MVCCalibrator captures the peak RMS of a maximum voluntary contraction. It
// owns its own WindowReducer so a calibration never disturbs the live
// pipeline's partially filled window.
type MVCCalibrator struct {
	reducer *WindowReducer
	peak    float64
	windows int
}

// NewMVCCalibrator creates a calibrator using windows of windowSize samples.
func NewMVCCalibrator(windowSize int) (*MVCCalibrator, error) {
	r, err := NewWindowReducer(windowSize)
	if err != nil {
		return nil, err
	}
	return &MVCCalibrator{reducer: r}, nil
}

// Observe feeds one batch into the calibrator.
func (c *MVCCalibrator) Observe(batch []float64) {
	for _, v := range c.reducer.Process(batch) {
		c.windows++
		if v > c.peak {
			c.peak = v
		}
	}
}

// Peak returns the highest window RMS observed so far.
func (c *MVCCalibrator) Peak() float64 { return c.peak }

// Windows returns how many complete windows were observed.
func (c *MVCCalibrator) Windows() int { return c.windows }

// Calibrate observes samples until duration elapses, ctx is done or samples
// is closed, and returns the observed peak. It returns 0 if no complete window
// arrived in time.
func (c *MVCCalibrator) Calibrate(ctx context.Context, duration time.Duration, samples <-chan []float64) float64 {
	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return c.peak
		case batch, ok := <-samples:
			if !ok {
				return c.peak
			}
			c.Observe(batch)
		}
	}
}

// MergeMVC combines a stored reference with a newly observed peak. The
// reference only ever rises.
func MergeMVC(current, observed float64) float64 {
	if observed > current {
		return observed
	}
	return current
}
