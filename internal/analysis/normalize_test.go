// SPDX-License-Identifier: MIT
package analysis

import (
	"emgrep/pkg/utils"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		desc           string
		rms, mvc, peak float64
		want           float64
	}{
		{"No reference yet", 0.5, 0, 0, 0},
		{"Below epsilon", 0.5, 1e-10, 5e-10, 0},
		{"MVC dominates", 0.5, 1.0, 0.8, 0.5},
		{"Peak dominates", 0.4, 0.5, 0.8, 0.5},
		{"Self referencing", 0.8, 0, 0.8, 1},
		{"Unbounded above", 2.0, 1.0, 1.0, 2.0},
		{"Zero input", 0, 1.0, 0.5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if got := Normalize(tt.rms, tt.mvc, tt.peak); !utils.AlmostEqual(got, tt.want, 1e-12) {
				t.Errorf("Normalize(%v, %v, %v) = %v, want %v", tt.rms, tt.mvc, tt.peak, got, tt.want)
			}
		})
	}
}

func TestNormalizeZeroReferenceAlwaysZero(t *testing.T) {
	for _, rms := range []float64{0, 1e-6, 0.3, 5, 1e6} {
		if got := Normalize(rms, 0, 0); got != 0 {
			t.Errorf("Normalize(%v, 0, 0) = %v, want 0", rms, got)
		}
	}
}

func TestClip01(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{-0.5, 0}, {0, 0}, {0.4, 0.4}, {1, 1}, {1.7, 1},
	}
	for _, tt := range tests {
		if got := Clip01(tt.in); got != tt.want {
			t.Errorf("Clip01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
