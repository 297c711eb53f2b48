// SPDX-License-Identifier: MIT
package engine

import (
	"emgrep/internal/analysis"
	"emgrep/internal/history"
	"time"
)

// SetStats are the envelope and calibration values captured when a set ends.
type SetStats struct {
	AvgV     float64
	PeakV    float64
	MVCV     float64
	PresetID string
}

// SetRecorder counts reps and accumulates time under tension. Reps are
// counted whether or not a set is being recorded; TUT only while recording.
type SetRecorder struct {
	recording bool
	id        string
	start     time.Time
	reps      int
	tut       time.Duration
}

// Start begins a set identified by id, resetting reps and TUT.
func (r *SetRecorder) Start(id string, now time.Time) {
	r.recording = true
	r.id = id
	r.start = now
	r.reps = 0
	r.tut = 0
}

// Observe applies a gate event.
func (r *SetRecorder) Observe(ev analysis.RepEvent) {
	if ev.Kind != analysis.RepCompleted {
		return
	}
	r.reps++
	if r.recording {
		r.tut += ev.Duration
	}
}

// Stop finishes the set and returns its summary. It fails with
// ErrNotRecording when no set was started.
func (r *SetRecorder) Stop(now time.Time, stats SetStats) (history.SetSummary, error) {
	if !r.recording {
		return history.SetSummary{}, ErrNotRecording
	}
	r.recording = false

	return history.SetSummary{
		ID:              r.id,
		Timestamp:       now,
		Reps:            r.reps,
		TUTSeconds:      r.tut.Seconds(),
		DurationSeconds: now.Sub(r.start).Seconds(),
		AvgV:            stats.AvgV,
		PeakV:           stats.PeakV,
		MVCV:            stats.MVCV,
		PresetID:        stats.PresetID,
	}, nil
}

func (r *SetRecorder) Recording() bool      { return r.recording }
func (r *SetRecorder) Reps() int            { return r.reps }
func (r *SetRecorder) TUT() time.Duration   { return r.tut }
func (r *SetRecorder) SetID() string        { return r.id }
func (r *SetRecorder) StartedAt() time.Time { return r.start }
