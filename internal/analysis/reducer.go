// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// WindowReducer turns raw samples into an RMS envelope using fixed,
// non-overlapping windows of Size samples. Incomplete windows are held until
// enough samples arrive and are never emitted on their own.
type WindowReducer struct {
	size   int
	window []float64 // Pre-allocated accumulation buffer, len grows to size.
	out    []float64 // Reused result slice returned by Process.
}

// NewWindowReducer creates a reducer emitting one RMS value every size samples.
func NewWindowReducer(size int) (*WindowReducer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("window size must be positive, got %d", size)
	}
	return &WindowReducer{
		size:   size,
		window: make([]float64, 0, size),
	}, nil
}

// WindowSizeFor returns the number of samples spanning d seconds at sampleRate,
// never less than one.
func WindowSizeFor(sampleRate, seconds float64) int {
	n := int(math.Round(sampleRate * seconds))
	if n < 1 {
		return 1
	}
	return n
}

// Size returns the configured window length in samples.
func (r *WindowReducer) Size() int {
	return r.size
}

// Pending returns how many samples are waiting for the current window to fill.
func (r *WindowReducer) Pending() int {
	return len(r.window)
}

// Process appends the batch to the current window and returns the RMS of
// every window completed, in order. The returned slice is reused by the next
// call; callers that keep it must copy.
func (r *WindowReducer) Process(batch []float64) []float64 {
	r.out = r.out[:0]
	for len(batch) > 0 {
		n := r.size - len(r.window)
		if n > len(batch) {
			n = len(batch)
		}
		r.window = append(r.window, batch[:n]...)
		batch = batch[n:]

		if len(r.window) == r.size {
			r.out = append(r.out, RMS(r.window))
			r.window = r.window[:0]
		}
	}
	return r.out
}

// Reset drops any partially filled window.
func (r *WindowReducer) Reset() {
	r.window = r.window[:0]
}

// RMS returns the root mean square of samples, or 0 for an empty slice.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(samples, samples) / float64(len(samples)))
}
