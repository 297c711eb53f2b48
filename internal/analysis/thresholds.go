// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidThresholds is returned when a threshold pair cannot drive the gate.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds is the engage (Hi) and release (Lo) pair of the rep gate,
// expressed as fractions of the normalization reference.
type Thresholds struct {
	Hi float64 `json:"hi" yaml:"hi"`
	Lo float64 `json:"lo" yaml:"lo"`
}

// DefaultThresholds is used when nothing has been persisted yet.
var DefaultThresholds = Thresholds{Hi: 0.6, Lo: 0.3}

// Validate reports whether both values are finite, inside (0, 1) and Lo < Hi.
func (t Thresholds) Validate() error {
	for _, v := range []float64{t.Hi, t.Lo} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value %v", ErrInvalidThresholds, v)
		}
		if v <= 0 || v >= 1 {
			return fmt.Errorf("%w: %v outside (0, 1)", ErrInvalidThresholds, v)
		}
	}
	if t.Lo >= t.Hi {
		return fmt.Errorf("%w: lo %.3f must be below hi %.3f", ErrInvalidThresholds, t.Lo, t.Hi)
	}
	return nil
}
