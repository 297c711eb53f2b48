// SPDX-License-Identifier: MIT
package transport

import "time"

// Message types carried in the "type" field of every outbound payload.
const (
	TypeEnvelope = "envelope"
	TypeRep      = "rep"
	TypeSet      = "set"
)

// EnvelopeFrame is published once per RMS window.
type EnvelopeFrame struct {
	Type    string    `json:"type"`
	Seq     uint64    `json:"seq"`
	At      time.Time `json:"at"`
	RMS     float64   `json:"rms"`
	Ratio   float64   `json:"ratio"`   // Unclipped normalized value the gate saw.
	Display float64   `json:"display"` // Ratio clipped to [0, 1].
	Average float64   `json:"avg"`
	Peak    float64   `json:"peak"`
	State   string    `json:"state"`
	Reps    int       `json:"reps"`
}

// RepMessage is published on every gate transition.
type RepMessage struct {
	Type            string    `json:"type"`
	Kind            string    `json:"kind"`
	At              time.Time `json:"at"`
	DurationSeconds float64   `json:"durationSec,omitempty"`
	Reps            int       `json:"reps"`
	Recording       bool      `json:"recording"`
}

// SetMessage wraps a finished set summary. Summary is any JSON-encodable
// value so this package stays free of storage types.
type SetMessage struct {
	Type    string `json:"type"`
	Summary any    `json:"summary"`
}

// FrameProvider exposes the most recent envelope frame to pollers.
type FrameProvider interface {
	LatestFrame() (EnvelopeFrame, bool)
}
