// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"testing"
)

func TestThresholdsValidate(t *testing.T) {
	tests := []struct {
		desc    string
		th      Thresholds
		wantErr bool
	}{
		{"Default", DefaultThresholds, false},
		{"Narrow", Thresholds{Hi: 0.51, Lo: 0.5}, false},
		{"Equal", Thresholds{Hi: 0.5, Lo: 0.5}, true},
		{"Reversed", Thresholds{Hi: 0.3, Lo: 0.6}, true},
		{"Hi at one", Thresholds{Hi: 1, Lo: 0.3}, true},
		{"Lo at zero", Thresholds{Hi: 0.6, Lo: 0}, true},
		{"NaN", Thresholds{Hi: math.NaN(), Lo: 0.3}, true},
		{"Inf", Thresholds{Hi: 0.6, Lo: math.Inf(-1)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := tt.th.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidThresholds) {
				t.Errorf("error %v does not wrap ErrInvalidThresholds", err)
			}
		})
	}
}
