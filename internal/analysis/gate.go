// SPDX-License-Identifier: MIT
package analysis

import "time"

// GateState is the state of the rep gate.
type GateState int

const (
	Idle GateState = iota
	Engaged
)

func (s GateState) String() string {
	if s == Engaged {
		return "engaged"
	}
	return "idle"
}

// RepEventKind identifies a gate transition.
type RepEventKind int

const (
	NoEvent RepEventKind = iota
	RepStarted
	RepCompleted
)

func (k RepEventKind) String() string {
	switch k {
	case RepStarted:
		return "rep_started"
	case RepCompleted:
		return "rep_completed"
	default:
		return "none"
	}
}

// RepEvent is emitted on every gate transition. Duration is set on
// RepCompleted and covers the time spent Engaged.
type RepEvent struct {
	Kind     RepEventKind
	At       time.Time
	Duration time.Duration
}

// RepGate is a Schmitt trigger over normalized envelope values. It engages
// when a value rises strictly above Hi and releases when a value falls
// strictly below Lo.
//
// The gate assumes Lo < Hi. A reversed pair is not rejected here; validate it
// with Thresholds.Validate before calling Update.
type RepGate struct {
	state    GateState
	repStart time.Time
}

// Update feeds one normalized value observed at now and returns the resulting
// transition, if any.
func (g *RepGate) Update(x float64, th Thresholds, now time.Time) RepEvent {
	switch g.state {
	case Idle:
		if x > th.Hi {
			g.state = Engaged
			g.repStart = now
			return RepEvent{Kind: RepStarted, At: now}
		}
	case Engaged:
		if x < th.Lo {
			d := now.Sub(g.repStart)
			g.state = Idle
			g.repStart = time.Time{}
			return RepEvent{Kind: RepCompleted, At: now, Duration: d}
		}
	}
	return RepEvent{}
}

// State returns the current gate state.
func (g *RepGate) State() GateState { return g.state }

// RepStart returns when the current rep began; zero while Idle.
func (g *RepGate) RepStart() time.Time { return g.repStart }

// Reset returns the gate to Idle, abandoning any rep in progress.
func (g *RepGate) Reset() {
	g.state = Idle
	g.repStart = time.Time{}
}
