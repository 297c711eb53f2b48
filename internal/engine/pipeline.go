// SPDX-License-Identifier: MIT
package engine

import (
	"emgrep/internal/analysis"
	"fmt"
	"time"
)

// TimeBase selects how window timestamps are produced.
type TimeBase int

const (
	// WallClock stamps every window of a batch with the batch arrival time.
	WallClock TimeBase = iota
	// SampleClock derives timestamps from the number of samples consumed.
	SampleClock
)

// ParseTimeBase accepts "wall" or "samples".
func ParseTimeBase(s string) (TimeBase, error) {
	switch s {
	case "", "wall":
		return WallClock, nil
	case "samples":
		return SampleClock, nil
	default:
		return WallClock, fmt.Errorf("unknown time base %q", s)
	}
}

// PipelineConfig sizes a Pipeline.
type PipelineConfig struct {
	SampleRate     float64          // Samples per second.
	WindowSize     int              // Samples per RMS window.
	HistorySeconds int              // Envelope history horizon.
	TimeBase       TimeBase         // Source of window timestamps.
	Clock          func() time.Time // Wall clock, time.Now when nil.
}

// Tick is the result of one completed RMS window.
type Tick struct {
	At      time.Time
	RMS     float64
	Ratio   float64
	Average float64
	Peak    float64
	State   analysis.GateState
	Event   analysis.RepEvent
}

// Pipeline is the per-connection signal chain: window reduction, envelope
// history, normalization and the rep gate. It is not safe for concurrent use;
// the Engine drives it from a single goroutine.
type Pipeline struct {
	sampleRate float64
	timeBase   TimeBase
	clock      func() time.Time
	origin     time.Time
	consumed   int64

	reducer  *analysis.WindowReducer
	envelope *analysis.EnvelopeBuffer
	gate     analysis.RepGate

	ticks []Tick // Reused result slice.
}

// NewPipeline validates cfg and allocates the signal chain.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.HistorySeconds <= 0 {
		return nil, fmt.Errorf("history seconds must be positive, got %d", cfg.HistorySeconds)
	}
	reducer, err := analysis.NewWindowReducer(cfg.WindowSize)
	if err != nil {
		return nil, err
	}
	envelope, err := analysis.NewEnvelopeBuffer(
		analysis.EnvelopeCapacity(cfg.SampleRate, cfg.WindowSize, cfg.HistorySeconds))
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{
		sampleRate: cfg.SampleRate,
		timeBase:   cfg.TimeBase,
		clock:      clock,
		origin:     clock(),
		reducer:    reducer,
		envelope:   envelope,
	}, nil
}

// Now returns the pipeline's notion of the current time.
func (p *Pipeline) Now() time.Time {
	if p.timeBase == SampleClock {
		return p.sampleTime(p.consumed)
	}
	return p.clock()
}

func (p *Pipeline) sampleTime(n int64) time.Time {
	return p.origin.Add(time.Duration(float64(n) / p.sampleRate * float64(time.Second)))
}

// Process runs one batch through the chain using the thresholds and MVC
// reference read once by the caller for this batch. Every completed window
// updates the envelope before it is normalized, so a new peak normalizes
// against itself. The returned slice is reused by the next call.
func (p *Pipeline) Process(batch []float64, th analysis.Thresholds, mvc float64) []Tick {
	arrival := p.Now()
	windowStart := p.consumed - int64(p.reducer.Pending())
	p.consumed += int64(len(batch))

	p.ticks = p.ticks[:0]
	for i, rms := range p.reducer.Process(batch) {
		at := arrival
		if p.timeBase == SampleClock {
			at = p.sampleTime(windowStart + int64((i+1)*p.reducer.Size()))
		}

		p.envelope.Push(rms)
		ratio := analysis.Normalize(rms, mvc, p.envelope.Peak())
		ev := p.gate.Update(ratio, th, at)

		p.ticks = append(p.ticks, Tick{
			At:      at,
			RMS:     rms,
			Ratio:   ratio,
			Average: p.envelope.Average(),
			Peak:    p.envelope.Peak(),
			State:   p.gate.State(),
			Event:   ev,
		})
	}
	return p.ticks
}

// Envelope exposes the rolling statistics.
func (p *Pipeline) Envelope() analysis.EnvelopeProvider { return p.envelope }

// History returns the envelope history, oldest first.
func (p *Pipeline) History() []float64 { return p.envelope.Values() }

// GateState returns the current gate state.
func (p *Pipeline) GateState() analysis.GateState { return p.gate.State() }

// WindowSize returns the RMS window length in samples.
func (p *Pipeline) WindowSize() int { return p.reducer.Size() }

// Reset starts a new session: the partial window, the envelope history, the
// running peak and the gate are cleared. The sample clock keeps running.
func (p *Pipeline) Reset() {
	p.reducer.Reset()
	p.envelope.Reset()
	p.gate.Reset()
}
