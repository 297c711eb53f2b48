// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"emgrep/internal/config"
	"emgrep/internal/engine"
	"emgrep/internal/history"
	"emgrep/internal/preset"
	"emgrep/internal/source"
	"emgrep/internal/transport"
	"emgrep/internal/tui"
)

func listDevices(cfg *config.Config) error {
	if err := source.Initialize(); err != nil {
		return err
	}
	defer source.Terminate()

	devices, err := source.InputDevices()
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}
	fmt.Println(tui.Title("Input Devices"))
	fmt.Println()
	fmt.Print(tui.RenderDevices(devices, cfg.Source.PortAudio.InputDevice))
	return nil
}

func showPresets(ctx context.Context, cfg *config.Config) error {
	store, err := history.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		return err
	}
	active := settings.WithDefaults().PresetID
	fmt.Println(tui.Title("Presets"))
	fmt.Println(tui.RenderPresets(preset.All(), active))
	return nil
}

func showHistory(ctx context.Context, cfg *config.Config) error {
	store, err := history.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	log, err := history.NewLog(ctx, store)
	if err != nil {
		return err
	}
	fmt.Println(tui.Title(fmt.Sprintf("History (%d sets)", log.Len())))
	fmt.Println(tui.RenderHistory(log.List()))
	return nil
}

// startingSource starts a set as soon as the stream is live, before the
// first batch is delivered.
type startingSource struct {
	engine.SampleSource
	start func(ctx context.Context) error
}

func (s startingSource) Stream(ctx context.Context, sink func([]float64)) error {
	if err := s.start(ctx); err != nil {
		return err
	}
	return s.SampleSource.Stream(ctx, sink)
}

// replay runs a WAV file through a fresh engine as one set. Timestamps come
// from the sample count, so results do not depend on replay speed.
func replay(ctx context.Context, cfg *config.Config, o *Options) error {
	path := o.Args[0]
	if err := alignWAV(cfg, path); err != nil {
		return err
	}
	cfg.Signal.TimeBase = "samples"
	cfg.Recording.Enabled = false

	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	opts.Lossless = !o.Realtime

	var store history.Store = history.NewMemoryStore()
	if !o.DryRun {
		if store, err = history.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN); err != nil {
			return err
		}
	}
	defer store.Close()

	eng, err := engine.New(ctx, opts, store, transport.Multi{transport.NewLoggingTransport()})
	if err != nil {
		return err
	}
	engineCtx, stopEngine := context.WithCancel(context.WithoutCancel(ctx))
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(engineCtx) }()
	defer func() {
		stopEngine()
		<-engineDone
	}()

	if o.Preset != "" {
		if _, err := eng.ApplyPreset(ctx, o.Preset); err != nil && !errors.Is(err, history.ErrPersist) {
			return err
		}
	}

	src := startingSource{
		SampleSource: source.NewWAV(source.WAVOptions{
			Path:            path,
			FramesPerBuffer: cfg.Source.FramesPerBuffer,
			FullScaleVolts:  cfg.Source.FullScaleVolts,
			Realtime:        o.Realtime,
		}),
		start: func(ctx context.Context) error {
			_, err := eng.StartSet(ctx)
			return err
		},
	}
	attachErr := eng.Attach(ctx, src)

	stopCtx, cancel := context.WithTimeout(engineCtx, shutdownTimeout)
	defer cancel()
	summary, err := eng.StopSet(stopCtx)
	if err != nil && !errors.Is(err, history.ErrPersist) {
		return errors.Join(attachErr, err)
	}
	fmt.Println(tui.RenderSummary(summary))
	return errors.Join(attachErr, err)
}

// calibrate attaches the configured source and captures an MVC.
func calibrate(ctx context.Context, cfg *config.Config, o *Options) error {
	if cfg.Source.Kind == config.SourceWAV && cfg.Source.WAV.Path != "" {
		if err := alignWAV(cfg, cfg.Source.WAV.Path); err != nil {
			return err
		}
	}
	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	opts.Recording.Enabled = false
	src, err := buildSource(cfg)
	if err != nil {
		return err
	}

	store, err := history.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	eng, err := engine.New(ctx, opts, store, transport.Multi{transport.NewLoggingTransport()})
	if err != nil {
		return err
	}
	engineCtx, stopEngine := context.WithCancel(context.WithoutCancel(ctx))
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(engineCtx) }()
	defer func() {
		stopEngine()
		<-engineDone
	}()

	attachCtx, detach := context.WithCancel(ctx)
	attachDone := make(chan error, 1)
	go func() { attachDone <- eng.Attach(attachCtx, src) }()
	defer func() {
		detach()
		<-attachDone
	}()

	if err := waitConnected(ctx, eng, connectTimeout); err != nil {
		return err
	}

	duration := o.Duration
	if duration <= 0 {
		duration = cfg.Calibration.Duration
	}
	before := eng.Settings().MVC
	fmt.Printf("Contract as hard as you can for %s...\n", duration)
	mvc, err := eng.CalibrateFor(ctx, duration)
	if err != nil && !errors.Is(err, history.ErrPersist) {
		return err
	}
	if mvc > before {
		fmt.Printf("MVC raised from %.4f V to %.4f V\n", before, mvc)
	} else {
		fmt.Printf("MVC unchanged at %.4f V\n", mvc)
	}
	return err
}

// printStatus rewrites a status line on the terminal until ctx is done.
func printStatus(ctx context.Context, eng *engine.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case <-ticker.C:
			fmt.Printf("\r\033[K%s", tui.StatusLine(eng.Status()))
		}
	}
}
