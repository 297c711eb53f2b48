// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"emgrep/internal/api"
	"emgrep/internal/config"
	"emgrep/internal/engine"
	"emgrep/internal/history"
	applog "emgrep/internal/log"
	"emgrep/internal/source"
	"emgrep/internal/transport"
	"emgrep/internal/transport/udp"
	"emgrep/pkg/build"
)

const (
	reconnectDelay  = 2 * time.Second
	connectTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
	statusInterval  = 500 * time.Millisecond
)

// Run loads the configuration, applies the command line on top and executes
// the selected command until ctx is done.
func Run(ctx context.Context, o *Options) error {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cfg, o); err != nil {
		return err
	}
	setupLogging(cfg)
	info := build.GetBuildFlags()
	applog.New("component", "main").Debug("starting "+info.Name, info.LogContext()...)

	switch o.Command {
	case CommandList:
		return listDevices(cfg)
	case CommandPresets:
		return showPresets(ctx, cfg)
	case CommandHistory:
		return showHistory(ctx, cfg)
	case CommandReplay:
		return replay(ctx, cfg, o)
	case CommandCalibrate:
		return calibrate(ctx, cfg, o)
	case "":
		return runLive(ctx, cfg, o)
	default:
		return fmt.Errorf("unknown command %q", o.Command)
	}
}

// applyFlags layers command line overrides onto cfg and validates the result.
func applyFlags(cfg *config.Config, o *Options) error {
	if o.Verbose {
		cfg.Debug = true
	}
	if o.Source != "" {
		cfg.Source.Kind = o.Source
	}
	if o.deviceOK {
		cfg.Source.PortAudio.InputDevice = o.DeviceID
	}
	if o.Record {
		cfg.Recording.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setupLogging(cfg *config.Config) {
	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.SetLevel(level)
}

func engineOptions(cfg *config.Config) (engine.Options, error) {
	tb, err := engine.ParseTimeBase(cfg.Signal.TimeBase)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		Pipeline: engine.PipelineConfig{
			SampleRate:     cfg.Signal.SampleRate,
			WindowSize:     cfg.WindowSize(),
			HistorySeconds: cfg.Signal.HistorySeconds,
			TimeBase:       tb,
		},
		QueueSize:           cfg.Signal.QueueSize,
		CalibrationDuration: cfg.Calibration.Duration,
		Recording: engine.RecordingOptions{
			Enabled:        cfg.Recording.Enabled,
			Dir:            cfg.Recording.OutputDir,
			BitDepth:       cfg.Recording.BitDepth,
			FullScaleVolts: cfg.Source.FullScaleVolts,
		},
	}, nil
}

// alignWAV makes the signal rate follow the file for WAV sources.
func alignWAV(cfg *config.Config, path string) error {
	info, err := source.ProbeWAV(path)
	if err != nil {
		return err
	}
	if float64(info.SampleRate) != cfg.Signal.SampleRate {
		applog.Infof("Using the file's sample rate %d Hz instead of %.0f Hz", info.SampleRate, cfg.Signal.SampleRate)
		cfg.Signal.SampleRate = float64(info.SampleRate)
	}
	return nil
}

func buildSource(cfg *config.Config) (engine.SampleSource, error) {
	src := cfg.Source
	switch src.Kind {
	case config.SourcePortAudio:
		return source.NewPortAudio(source.PortAudioOptions{
			DeviceID:        src.PortAudio.InputDevice,
			SampleRate:      cfg.Signal.SampleRate,
			FramesPerBuffer: src.FramesPerBuffer,
			LowLatency:      src.PortAudio.LowLatency,
			FullScaleVolts:  src.FullScaleVolts,
		}), nil
	case config.SourceWAV:
		if src.WAV.Path == "" {
			return nil, errors.New("source.wav.path must be set for the wav source")
		}
		return source.NewWAV(source.WAVOptions{
			Path:            src.WAV.Path,
			FramesPerBuffer: src.FramesPerBuffer,
			FullScaleVolts:  src.FullScaleVolts,
			Realtime:        src.WAV.Realtime,
		}), nil
	case config.SourceNATS:
		return source.NewNATS(src.NATS.URL, src.NATS.Subject), nil
	case config.SourceSerial:
		return source.NewSerial(source.SerialOptions{
			Port:            src.Serial.Port,
			Baud:            src.Serial.Baud,
			FramesPerBuffer: src.FramesPerBuffer,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", src.Kind)
	}
}

// outputs owns the outbound feeds of a live session.
type outputs struct {
	transports transport.Multi
	websocket  *transport.WebSocketTransport
	udpSender  *udp.UDPSender
	udp        *udp.UDPPublisher
}

func buildOutputs(cfg *config.Config) (*outputs, error) {
	t := cfg.Transport
	out := &outputs{transports: transport.Multi{transport.NewLoggingTransport()}}

	if t.WebSocketEnabled {
		out.websocket = transport.NewWebSocketTransport(t.WebSocketAddress)
		out.transports = append(out.transports, out.websocket)
	}
	if t.MQTTEnabled {
		mqtt, err := transport.NewMQTTTransport(transport.MQTTOptions{
			Broker:   t.MQTTBroker,
			Topic:    t.MQTTTopic,
			ClientID: t.MQTTClientID,
			QoS:      1,
		})
		if err != nil {
			out.Close()
			return nil, err
		}
		out.transports = append(out.transports, mqtt)
	}
	if t.UDPEnabled {
		sender, err := udp.NewUDPSender(t.UDPTargetAddress)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.udpSender = sender
	}
	return out, nil
}

// startUDP begins polling frames once the engine exists.
func (o *outputs) startUDP(frames transport.FrameProvider, interval time.Duration) error {
	if o.udpSender == nil {
		return nil
	}
	p, err := udp.NewUDPPublisher(interval, o.udpSender, frames)
	if err != nil {
		return err
	}
	o.udp = p
	p.Start()
	return nil
}

// live returns the WebSocket feed for mounting on the API, or nil.
func (o *outputs) live() http.Handler {
	if o.websocket == nil {
		return nil
	}
	return o.websocket
}

func (o *outputs) Close() error {
	var errs []error
	if o.udp != nil {
		errs = append(errs, o.udp.Close())
	}
	if o.udpSender != nil {
		errs = append(errs, o.udpSender.Close())
	}
	errs = append(errs, o.transports.Close())
	return errors.Join(errs...)
}

// superviseSource keeps src attached until ctx is done. Live sources are
// reattached after a failure; a source that ends cleanly is not restarted.
func superviseSource(ctx context.Context, eng *engine.Engine, src engine.SampleSource) {
	logger := applog.New("component", "supervisor", "source", src.Name())
	for {
		err := eng.Attach(ctx, src)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			logger.Info("source finished")
			return
		}
		logger.Warn("reconnecting", "err", err, "delay", reconnectDelay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// waitConnected polls until a source is attached or the timeout expires.
func waitConnected(ctx context.Context, eng *engine.Engine, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for !eng.Connected() {
		select {
		case <-ctx.Done():
			return engine.ErrNotConnected
		case <-ticker.C:
		}
	}
	return nil
}

func runLive(ctx context.Context, cfg *config.Config, o *Options) error {
	logger := applog.New("component", "main")

	if cfg.Source.Kind == config.SourceWAV && cfg.Source.WAV.Path != "" {
		if err := alignWAV(cfg, cfg.Source.WAV.Path); err != nil {
			return err
		}
	}
	opts, err := engineOptions(cfg)
	if err != nil {
		return err
	}
	src, err := buildSource(cfg)
	if err != nil {
		return err
	}

	store, err := history.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		return fmt.Errorf("opening %s history: %w", cfg.Storage.Driver, err)
	}
	defer store.Close()

	out, err := buildOutputs(cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	eng, err := engine.New(ctx, opts, store, out.transports)
	if err != nil {
		return err
	}

	// The engine outlives ctx so an open set can be closed on shutdown.
	engineCtx, stopEngine := context.WithCancel(context.WithoutCancel(ctx))
	defer stopEngine()
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(engineCtx) }()

	if err := out.startUDP(eng, cfg.Transport.UDPSendInterval); err != nil {
		return err
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		superviseSource(sessionCtx, eng, src)
	}()

	if cfg.API.Enabled {
		server := api.New(eng, out.live(), cfg.Debug)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Run(sessionCtx, cfg.API.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("control API stopped", "err", err)
				cancel()
			}
		}()
	}

	if o.ShowStatus {
		wg.Add(1)
		go func() {
			defer wg.Done()
			printStatus(sessionCtx, eng, statusInterval)
		}()
	}

	logger.Info("engine running", "source", src.Name(), "storage", cfg.Storage.Driver,
		"window", opts.Pipeline.WindowSize, "preset", eng.Status().PresetID)
	<-sessionCtx.Done()
	wg.Wait()

	if eng.Status().Recording {
		stopCtx, cancelStop := context.WithTimeout(engineCtx, shutdownTimeout)
		summary, err := eng.StopSet(stopCtx)
		cancelStop()
		if err != nil {
			logger.Error("closing open set", "err", err)
		} else {
			logger.Info("open set closed on shutdown", "set", summary.ID, "reps", summary.Reps)
		}
	}

	stopEngine()
	<-engineDone
	logger.Info("engine stopped")
	return nil
}
