// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// EnvelopeBuffer is a fixed-capacity FIFO of envelope values with a running
// peak and average. The peak survives eviction and only drops on Reset.
type EnvelopeBuffer struct {
	ring    []float64 // Backing storage, len == capacity.
	head    int       // Index of the oldest value.
	length  int
	peak    float64
	average float64
}

// EnvelopeCapacity returns round(sampleRate/windowSize) * historySeconds, the
// number of windows covering the history horizon.
func EnvelopeCapacity(sampleRate float64, windowSize int, historySeconds int) int {
	return int(math.Round(sampleRate/float64(windowSize))) * historySeconds
}

// NewEnvelopeBuffer creates a buffer holding at most capacity values.
func NewEnvelopeBuffer(capacity int) (*EnvelopeBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("envelope capacity must be positive, got %d", capacity)
	}
	return &EnvelopeBuffer{ring: make([]float64, capacity)}, nil
}

// Push appends v, evicting the oldest value when the buffer is full, then
// recomputes the average and raises the peak.
func (b *EnvelopeBuffer) Push(v float64) {
	capacity := len(b.ring)
	if b.length < capacity {
		b.ring[(b.head+b.length)%capacity] = v
		b.length++
	} else {
		b.ring[b.head] = v
		b.head = (b.head + 1) % capacity
	}

	// head stays at 0 until the ring first fills, so the occupied region is
	// always ring[:length].
	b.average = floats.Sum(b.ring[:b.length]) / float64(b.length)
	if v > b.peak {
		b.peak = v
	}
}

// Peak returns the highest value pushed since construction or the last Reset.
func (b *EnvelopeBuffer) Peak() float64 { return b.peak }

// Average returns the mean of the values currently held, 0 when empty.
func (b *EnvelopeBuffer) Average() float64 { return b.average }

// Len returns the number of values currently held.
func (b *EnvelopeBuffer) Len() int { return b.length }

// Cap returns the buffer capacity.
func (b *EnvelopeBuffer) Cap() int { return len(b.ring) }

// Latest returns the most recently pushed value, 0 when empty.
func (b *EnvelopeBuffer) Latest() float64 {
	if b.length == 0 {
		return 0
	}
	return b.ring[(b.head+b.length-1)%len(b.ring)]
}

// Values returns a copy of the held values, oldest first.
func (b *EnvelopeBuffer) Values() []float64 {
	out := make([]float64, b.length)
	for i := range out {
		out[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	return out
}

// Reset clears the history, the average and the peak.
func (b *EnvelopeBuffer) Reset() {
	b.head = 0
	b.length = 0
	b.peak = 0
	b.average = 0
}
