// SPDX-License-Identifier: MIT
package engine

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// RecordingOptions controls raw per-set WAV capture.
type RecordingOptions struct {
	Enabled        bool
	Dir            string
	BitDepth       int     // 16, 24 or 32.
	FullScaleVolts float64 // Voltage mapped to PCM full scale.
}

// RawPath returns the file a set's raw samples are written to.
func RawPath(dir, setID string) string {
	return filepath.Join(dir, "set-"+setID+".wav")
}

// rawRecorder writes the raw samples of one set to a mono WAV file.
type rawRecorder struct {
	path      string
	file      *os.File
	encoder   *wav.Encoder
	buf       *audio.IntBuffer
	maxInt    float64
	fullScale float64
}

func newRawRecorder(path string, sampleRate, bitDepth int, fullScale float64) (*rawRecorder, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if fullScale <= 0 {
		return nil, fmt.Errorf("full scale must be positive, got %f", fullScale)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &rawRecorder{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, sampleRate, bitDepth, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
		maxInt:    math.Pow(2, float64(bitDepth-1)) - 1,
		fullScale: fullScale,
	}, nil
}

func (r *rawRecorder) Path() string { return r.path }

// Write appends a batch of volts, clipping at full scale.
func (r *rawRecorder) Write(batch []float64) error {
	if cap(r.buf.Data) < len(batch) {
		r.buf.Data = make([]int, len(batch))
	}
	r.buf.Data = r.buf.Data[:len(batch)]
	for i, v := range batch {
		s := v / r.fullScale
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		r.buf.Data[i] = int(math.Round(s * r.maxInt))
	}
	return r.encoder.Write(r.buf)
}

// Close finalizes the WAV header and closes the file.
func (r *rawRecorder) Close() error {
	encErr := r.encoder.Close()
	fileErr := r.file.Close()
	if encErr != nil {
		return encErr
	}
	return fileErr
}

// openRaw starts raw capture for setID when recording is enabled. Failures
// are logged and leave the set running without raw capture.
func (e *Engine) openRaw(setID string) {
	opts := e.opts.Recording
	if !opts.Enabled {
		return
	}
	r, err := newRawRecorder(RawPath(opts.Dir, setID), int(e.opts.Pipeline.SampleRate), opts.BitDepth, opts.FullScaleVolts)
	if err != nil {
		e.logger.Error("raw recording not started", "set", setID, "err", err)
		return
	}
	e.raw = r
	e.logger.Info("raw recording started", "path", r.Path())
}

func (e *Engine) closeRaw() {
	if e.raw == nil {
		return
	}
	if err := e.raw.Close(); err != nil {
		e.logger.Error("closing raw recording", "path", e.raw.Path(), "err", err)
	} else {
		e.logger.Info("raw recording saved", "path", e.raw.Path())
	}
	e.raw = nil
}
