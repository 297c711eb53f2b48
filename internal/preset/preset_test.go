// SPDX-License-Identifier: MIT
package preset

import (
	"errors"
	"testing"
)

func TestBuiltinPresetsAreValid(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range All() {
		if err := p.Thresholds().Validate(); err != nil {
			t.Errorf("preset %s: %v", p.ID, err)
		}
		if p.TargetMinSec > p.TargetMaxSec {
			t.Errorf("preset %s: target band %v..%v is reversed", p.ID, p.TargetMinSec, p.TargetMaxSec)
		}
		if seen[p.ID] {
			t.Errorf("duplicate preset id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestDefaultIsFirst(t *testing.T) {
	if Default().ID != All()[0].ID {
		t.Errorf("Default() = %s, want %s", Default().ID, All()[0].ID)
	}
}

func TestLookup(t *testing.T) {
	p, err := Lookup("strength")
	if err != nil {
		t.Fatalf("Lookup(strength): %v", err)
	}
	if p.Hi != 0.7 {
		t.Errorf("strength hi = %v", p.Hi)
	}

	if _, err := Lookup("yoga"); !errors.Is(err, ErrUnknownPreset) {
		t.Errorf("Lookup(yoga) error = %v, want ErrUnknownPreset", err)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	ps := All()
	ps[0].Hi = 0.99
	if Default().Hi == 0.99 {
		t.Error("mutating All() result changed the built-in list")
	}
}

func TestClassify(t *testing.T) {
	p := Preset{TargetMinSec: 30, TargetMaxSec: 60}
	tests := []struct {
		dur  float64
		want Target
	}{
		{10, TargetShort},
		{30, TargetOnTarget},
		{45, TargetOnTarget},
		{60, TargetOnTarget},
		{61, TargetLong},
	}
	for _, tt := range tests {
		if got := p.Classify(tt.dur); got != tt.want {
			t.Errorf("Classify(%v) = %s, want %s", tt.dur, got, tt.want)
		}
	}
}
