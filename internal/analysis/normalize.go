// SPDX-License-Identifier: MIT
package analysis

// Epsilon is the smallest denominator Normalize will divide by.
const Epsilon = 1e-9

// Normalize maps an envelope value onto a ratio of max(mvc, peak). Before any
// calibration the running peak alone serves as the reference. The result is
// not clipped and may exceed 1.
func Normalize(rms, mvc, peak float64) float64 {
	denom := mvc
	if peak > denom {
		denom = peak
	}
	if denom > Epsilon {
		return rms / denom
	}
	return 0
}

// Clip01 clamps a ratio into [0, 1] for display.
func Clip01(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
