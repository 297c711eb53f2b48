// SPDX-License-Identifier: MIT
package analysis

// SampleProcessor is implemented by components that consume raw sample batches.
// Implementations are driven from a single goroutine and must not retain the
// batch slice after Process returns.
type SampleProcessor interface {
	// Process consumes the batch and returns the RMS values of every window the
	// batch completed, oldest first.
	Process(batch []float64) []float64
}

// EnvelopeProvider exposes the rolling envelope statistics.
type EnvelopeProvider interface {
	Peak() float64    // Peak returns the highest RMS value seen since the last reset.
	Average() float64 // Average returns the mean of the values currently held.
	Len() int         // Len returns the number of values currently held.
}

var _ SampleProcessor = (*WindowReducer)(nil)
var _ EnvelopeProvider = (*EnvelopeBuffer)(nil)
