package utils

import (
	"math"
	"sync"
)

// MockTransport implements the Transport interface for testing.
type MockTransport struct {
	mu   sync.Mutex
	Sent []any
}

// Send stores the data for later inspection instead of transmitting.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	return nil
}

// Close is a no-op.
func (m *MockTransport) Close() error { return nil }

// Messages returns a copy of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// GenerateConstant returns size samples all equal to v.
func GenerateConstant(size int, v float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = v
	}
	return buffer
}

// GenerateSineWave returns a sine carrier of the given amplitude (volts) and
// frequency. Its RMS over whole periods is amplitude/sqrt(2).
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*t)
	}
	return buffer
}

// GenerateContraction builds a rest/contract/rest burst: rest samples at
// restAmplitude, active samples at activeAmplitude with alternating sign,
// then rest samples again. Alternating sign keeps the mean at zero like a
// real EMG signal while the RMS equals the amplitude.
func GenerateContraction(rest, active int, restAmplitude, activeAmplitude float64) []float64 {
	buffer := make([]float64, 0, 2*rest+active)
	for i := 0; i < rest; i++ {
		buffer = append(buffer, alternate(i, restAmplitude))
	}
	for i := 0; i < active; i++ {
		buffer = append(buffer, alternate(i, activeAmplitude))
	}
	for i := 0; i < rest; i++ {
		buffer = append(buffer, alternate(i, restAmplitude))
	}
	return buffer
}

func alternate(i int, amplitude float64) float64 {
	if i%2 == 0 {
		return amplitude
	}
	return -amplitude
}

// Split cuts samples into batches of at most size, mimicking bursty delivery.
func Split(samples []float64, size int) [][]float64 {
	var batches [][]float64
	for len(samples) > 0 {
		n := size
		if n > len(samples) {
			n = len(samples)
		}
		batches = append(batches, samples[:n])
		samples = samples[n:]
	}
	return batches
}

// AlmostEqual reports whether a and b differ by at most tol.
func AlmostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
