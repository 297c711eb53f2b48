// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"fmt"

	applog "emgrep/internal/log"

	"github.com/gordonklaus/portaudio"
)

// PortAudioOptions configures live capture.
type PortAudioOptions struct {
	DeviceID        int // -1 for the default input device.
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
	FullScaleVolts  float64 // Volts represented by a sample of 1.0.
}

// PortAudio captures mono float32 samples from an input device.
type PortAudio struct {
	opts PortAudioOptions
}

func NewPortAudio(opts PortAudioOptions) *PortAudio {
	return &PortAudio{opts: opts}
}

func (p *PortAudio) Name() string { return fmt.Sprintf("portaudio:%d", p.opts.DeviceID) }

// Stream opens the device and delivers one batch per PortAudio callback
// until ctx is done.
func (p *PortAudio) Stream(ctx context.Context, sink func([]float64)) error {
	if err := Initialize(); err != nil {
		return err
	}
	defer Terminate()

	device, err := inputDevice(p.opts.DeviceID)
	if err != nil {
		return err
	}
	latency := device.DefaultHighInputLatency
	if p.opts.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	scale := p.opts.FullScaleVolts
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  latency,
		},
		SampleRate:      p.opts.SampleRate,
		FramesPerBuffer: p.opts.FramesPerBuffer,
	}
	stream, err := portaudio.OpenStream(params, func(in []float32) {
		batch := make([]float64, len(in))
		for i, v := range in {
			batch[i] = float64(v) * scale
		}
		sink(batch)
	})
	if err != nil {
		return fmt.Errorf("opening input stream on %s: %w", device.Name, err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("starting input stream: %w", err)
	}
	applog.New("source", "portaudio").Info("capturing", "device", device.Name,
		"rate", p.opts.SampleRate, "frames", p.opts.FramesPerBuffer, "latency", latency)

	<-ctx.Done()
	if err := stream.Stop(); err != nil {
		return fmt.Errorf("stopping input stream: %w", err)
	}
	return ctx.Err()
}

var _ Source = (*PortAudio)(nil)
