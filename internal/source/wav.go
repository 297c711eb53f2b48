// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"fmt"
	"os"
	"time"

	applog "emgrep/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVOptions configures file replay.
type WAVOptions struct {
	Path            string
	FramesPerBuffer int
	FullScaleVolts  float64
	Realtime        bool // Pace batches at the file's sample rate.
}

// WAV replays the first channel of a PCM WAV file.
type WAV struct {
	opts WAVOptions
}

func NewWAV(opts WAVOptions) *WAV {
	return &WAV{opts: opts}
}

func (w *WAV) Name() string { return "wav:" + w.opts.Path }

// WAVInfo describes a WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ProbeWAV reads the header of the file at path.
func ProbeWAV(path string) (WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVInfo{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return WAVInfo{}, fmt.Errorf("%s is not a valid WAV file", path)
	}
	d, err := dec.Duration()
	if err != nil {
		return WAVInfo{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   d,
	}, nil
}

// Stream decodes the file and delivers batches of FramesPerBuffer samples.
// It returns nil once the file is exhausted.
func (w *WAV) Stream(ctx context.Context, sink func([]float64)) error {
	f, err := os.Open(w.opts.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("%s is not a valid WAV file", w.opts.Path)
	}
	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	frames := w.opts.FramesPerBuffer
	if frames <= 0 {
		frames = 100
	}
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: int(dec.SampleRate)},
		Data:   make([]int, frames*channels),
	}

	var ticker *time.Ticker
	if w.opts.Realtime {
		period := time.Duration(float64(frames) / float64(dec.SampleRate) * float64(time.Second))
		ticker = time.NewTicker(period)
		defer ticker.Stop()
	}

	logger := applog.New("source", "wav", "path", w.opts.Path)
	logger.Info("replaying", "rate", dec.SampleRate, "channels", channels, "bits", bitDepth, "realtime", w.opts.Realtime)

	var total int
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", w.opts.Path, err)
		}
		if n == 0 {
			logger.Info("replay finished", "samples", total)
			return nil
		}

		batch := make([]float64, n/channels)
		for i := range batch {
			batch[i] = pcmToVolts(buf.Data[i*channels], bitDepth, w.opts.FullScaleVolts)
		}
		total += len(batch)

		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		sink(batch)
	}
}

var _ Source = (*WAV)(nil)
