// SPDX-License-Identifier: MIT
/*
Package source delivers raw EMG samples, in volts, from the supported inputs:
- PortAudio capture from an audio-class EMG front end
- WAV replay of recorded sets
- NATS subjects carrying little-endian float32 batches
- Serial boards printing ASCII samples

Every source hands the sink freshly allocated batches in arrival order from a
single goroutine. The sink owns each batch.
*/
package source

import "context"

// Source streams sample batches until ctx is done or the input fails. A
// finite input (a file) returns nil when exhausted.
type Source interface {
	Name() string
	Stream(ctx context.Context, sink func(batch []float64)) error
}

// pcmToVolts converts a signed PCM sample of the given bit depth to volts.
func pcmToVolts(v, bitDepth int, fullScale float64) float64 {
	peak := float64(int64(1)<<(bitDepth-1)) - 1
	return float64(v) / peak * fullScale
}
