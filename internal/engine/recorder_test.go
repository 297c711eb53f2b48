// SPDX-License-Identifier: MIT
package engine

import (
	"emgrep/internal/analysis"
	"errors"
	"testing"
	"time"
)

func completed(d time.Duration) analysis.RepEvent {
	return analysis.RepEvent{Kind: analysis.RepCompleted, At: testEpoch.Add(d), Duration: d}
}

func TestSetRecorderTUTOnlyWhileRecording(t *testing.T) {
	var r SetRecorder

	r.Observe(completed(400 * time.Millisecond))
	if r.Reps() != 1 || r.TUT() != 0 {
		t.Fatalf("idle recorder reps=%d tut=%v, want 1 and 0", r.Reps(), r.TUT())
	}

	r.Start("a", testEpoch)
	if r.Reps() != 0 {
		t.Fatalf("Start() kept %d reps", r.Reps())
	}
	r.Observe(analysis.RepEvent{Kind: analysis.RepStarted, At: testEpoch})
	r.Observe(completed(300 * time.Millisecond))
	r.Observe(completed(200 * time.Millisecond))

	summary, err := r.Stop(testEpoch.Add(2*time.Second), SetStats{AvgV: 0.2, PeakV: 0.9, MVCV: 1.1, PresetID: "strength"})
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reps != 2 {
		t.Errorf("reps = %d, want 2", summary.Reps)
	}
	if !almostEqual(summary.TUTSeconds, 0.5) {
		t.Errorf("tut = %f, want 0.5", summary.TUTSeconds)
	}
	if !almostEqual(summary.DurationSeconds, 2) {
		t.Errorf("duration = %f, want 2", summary.DurationSeconds)
	}
	if summary.ID != "a" || summary.PresetID != "strength" || summary.PeakV != 0.9 {
		t.Errorf("summary = %+v", summary)
	}

	// After stopping, reps keep counting but TUT does not grow.
	r.Observe(completed(time.Second))
	if r.Recording() || r.TUT() != 500*time.Millisecond {
		t.Errorf("after stop recording=%v tut=%v", r.Recording(), r.TUT())
	}
}

func TestSetRecorderStopWithoutStart(t *testing.T) {
	var r SetRecorder
	if _, err := r.Stop(testEpoch, SetStats{}); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop() error = %v, want ErrNotRecording", err)
	}

	r.Start("b", testEpoch)
	if _, err := r.Stop(testEpoch, SetStats{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Stop(testEpoch, SetStats{}); !errors.Is(err, ErrNotRecording) {
		t.Errorf("second Stop() error = %v, want ErrNotRecording", err)
	}
}
