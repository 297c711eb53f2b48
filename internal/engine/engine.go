// SPDX-License-Identifier: MIT
/*
Package engine implements the real-time EMG rep counting engine:
- A single consumer goroutine owns the signal pipeline and set state
- Sample batches and control requests share one ordered inbox
- Producers never block; a full inbox drops the batch and counts it
- MVC calibration taps the sample stream without touching live state

Thread Safety:
- Pipeline, gate, set recorder and settings are only touched by Run
- Readers use the atomically published Status snapshot
*/
package engine

import (
	"context"
	"emgrep/internal/analysis"
	"emgrep/internal/history"
	applog "emgrep/internal/log"
	"emgrep/internal/preset"
	"emgrep/internal/transport"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/inconshreveable/log15"
)

var (
	// ErrNotConnected is returned when a set or calibration is requested
	// without a live sample source.
	ErrNotConnected = errors.New("no sample source connected")
	// ErrAlreadyConnected is returned by Attach while another source streams.
	ErrAlreadyConnected = errors.New("a sample source is already connected")
	// ErrNotRecording is returned by StopSet when no set was started.
	ErrNotRecording = errors.New("no set is being recorded")
	// ErrAlreadyRecording is returned by StartSet during a set.
	ErrAlreadyRecording = errors.New("a set is already being recorded")
	// ErrEngineStopped is returned by control requests once Run has exited.
	ErrEngineStopped = errors.New("engine stopped")
)

// Defaults used when Options leaves a field zero.
const (
	DefaultQueueSize           = 256
	DefaultCalibrationDuration = 3 * time.Second
)

// SampleSource delivers ordered sample batches to sink until ctx is done or
// the underlying connection fails.
type SampleSource interface {
	Name() string
	Stream(ctx context.Context, sink func(batch []float64)) error
}

// Options configures an Engine.
type Options struct {
	Pipeline            PipelineConfig
	QueueSize           int
	CalibrationDuration time.Duration
	Recording           RecordingOptions
	// Lossless makes Submit wait for inbox space instead of dropping. Used
	// for offline replay where the source outpaces processing.
	Lossless bool
}

// Status is a point-in-time view of the engine for readers outside Run.
type Status struct {
	Connected      bool      `json:"connected"`
	Recording      bool      `json:"recording"`
	SetID          string    `json:"setId,omitempty"`
	SetElapsed     float64   `json:"setElapsedSec"`
	GateState      string    `json:"gateState"`
	Reps           int       `json:"reps"`
	TUTSeconds     float64   `json:"tut"`
	RMS            float64   `json:"rms"`
	Ratio          float64   `json:"ratio"`
	AverageV       float64   `json:"avg"`
	PeakV          float64   `json:"peak"`
	MVCV           float64   `json:"mvc"`
	Hi             float64   `json:"hi"`
	Lo             float64   `json:"lo"`
	PresetID       string    `json:"presetId"`
	DroppedBatches uint64    `json:"droppedBatches"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// message is either a sample batch or a control closure.
type message struct {
	batch []float64
	fn    func()
	done  chan struct{}
}

type Engine struct {
	opts   Options
	logger log15.Logger

	inbox   chan message
	stopped chan struct{}
	running atomic.Bool

	// Owned by the Run goroutine.
	pipeline *Pipeline
	recorder SetRecorder
	settings history.Settings
	taps     map[chan []float64]struct{}
	raw      *rawRecorder
	frameSeq uint64
	last     Tick

	store     history.Store
	history   *history.Log
	transport transport.Transport

	connected atomic.Bool
	dropped   atomic.Uint64
	status    atomic.Pointer[Status]
	frame     atomic.Pointer[transport.EnvelopeFrame]
}

// New builds an engine, restoring settings and history from store. Missing
// settings fall back to the first preset, zero MVC and the default pair.
func New(ctx context.Context, opts Options, store history.Store, tr transport.Transport) (*Engine, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.CalibrationDuration <= 0 {
		opts.CalibrationDuration = DefaultCalibrationDuration
	}
	if tr == nil {
		tr = transport.Multi(nil)
	}

	pipeline, err := NewPipeline(opts.Pipeline)
	if err != nil {
		return nil, err
	}

	settings, err := store.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	settings = restoreSettings(settings)

	log, err := history.NewLog(ctx, store)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:      opts,
		logger:    applog.New("component", "engine"),
		inbox:     make(chan message, opts.QueueSize),
		stopped:   make(chan struct{}),
		pipeline:  pipeline,
		settings:  settings,
		taps:      make(map[chan []float64]struct{}),
		store:     store,
		history:   log,
		transport: tr,
	}
	e.publishStatus()

	e.logger.Info("engine ready",
		"sampleRate", opts.Pipeline.SampleRate, "window", pipeline.WindowSize(),
		"preset", settings.PresetID, "mvc", settings.MVC, "hi", settings.Hi, "lo", settings.Lo,
		"sets", log.Len())
	return e, nil
}

// restoreSettings applies defaults and repairs persisted values that no
// longer describe a usable configuration.
func restoreSettings(s history.Settings) history.Settings {
	s = s.WithDefaults()
	p, err := preset.Lookup(s.PresetID)
	if err != nil {
		p = preset.Default()
		s.PresetID = p.ID
	}
	if s.Thresholds().Validate() != nil {
		s.Hi, s.Lo = p.Hi, p.Lo
	}
	return s
}

// Run consumes the inbox until ctx is done. It must be called exactly once;
// every control method blocks until Run executes it.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return fmt.Errorf("engine already running")
	}
	defer close(e.stopped)
	defer e.closeRaw()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-e.inbox:
			if msg.fn != nil {
				msg.fn()
				close(msg.done)
				continue
			}
			e.processBatch(msg.batch)
		}
	}
}

// Submit queues a batch without blocking. The engine takes ownership of the
// slice. When the inbox is full the batch is dropped and counted, unless the
// engine is lossless.
func (e *Engine) Submit(batch []float64) {
	if len(batch) == 0 {
		return
	}
	if e.opts.Lossless {
		select {
		case e.inbox <- message{batch: batch}:
		case <-e.stopped:
		}
		return
	}
	select {
	case e.inbox <- message{batch: batch}:
	default:
		n := e.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			e.logger.Warn("inbox full, dropping sample batch", "dropped", n, "size", len(batch))
		}
	}
}

// do runs fn on the Run goroutine after every message queued before it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	msg := message{fn: fn, done: make(chan struct{})}
	select {
	case e.inbox <- msg:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}
	select {
	case <-msg.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}
}

// Attach streams src into the engine until ctx is done or the source fails.
// The pipeline is reset for every new connection. A source error leaves the
// engine running in a disconnected state and is returned to the caller.
func (e *Engine) Attach(ctx context.Context, src SampleSource) error {
	if !e.connected.CompareAndSwap(false, true) {
		return ErrAlreadyConnected
	}
	defer func() {
		e.connected.Store(false)
		e.logger.Info("source disconnected", "source", src.Name())
		e.publishStatusAsync()
	}()

	if err := e.do(ctx, func() {
		e.pipeline.Reset()
		e.last = Tick{}
		e.publishStatus()
	}); err != nil {
		return err
	}
	e.logger.Info("source connected", "source", src.Name())

	err := src.Stream(ctx, e.Submit)
	if err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Error("source failed", "source", src.Name(), "err", err)
		return fmt.Errorf("source %s: %w", src.Name(), err)
	}
	return nil
}

// Connected reports whether a source is attached.
func (e *Engine) Connected() bool {
	return e.connected.Load()
}

// processBatch is the single atomic step per delivered batch: pipeline, rep
// accounting, raw recording, calibration taps and publishing.
func (e *Engine) processBatch(batch []float64) {
	th := e.settings.Thresholds()
	mvc := e.settings.MVC

	for tap := range e.taps {
		select {
		case tap <- batch:
		default:
		}
	}
	if e.raw != nil {
		if err := e.raw.Write(batch); err != nil {
			e.logger.Error("raw recording failed, stopping it", "path", e.raw.Path(), "err", err)
			e.closeRaw()
		}
	}

	for _, tick := range e.pipeline.Process(batch, th, mvc) {
		e.last = tick
		if tick.Event.Kind != analysis.NoEvent {
			e.recorder.Observe(tick.Event)
			e.send(transport.RepMessage{
				Type:            transport.TypeRep,
				Kind:            tick.Event.Kind.String(),
				At:              tick.Event.At,
				DurationSeconds: tick.Event.Duration.Seconds(),
				Reps:            e.recorder.Reps(),
				Recording:       e.recorder.Recording(),
			})
		}

		e.frameSeq++
		frame := transport.EnvelopeFrame{
			Type:    transport.TypeEnvelope,
			Seq:     e.frameSeq,
			At:      tick.At,
			RMS:     tick.RMS,
			Ratio:   tick.Ratio,
			Display: analysis.Clip01(tick.Ratio),
			Average: tick.Average,
			Peak:    tick.Peak,
			State:   tick.State.String(),
			Reps:    e.recorder.Reps(),
		}
		e.frame.Store(&frame)
		e.send(frame)
	}
	e.publishStatus()
}

func (e *Engine) send(data any) {
	if err := e.transport.Send(data); err != nil {
		e.logger.Debug("transport send failed", "err", err)
	}
}

// publishStatus must be called from the Run goroutine (or before Run starts).
func (e *Engine) publishStatus() {
	env := e.pipeline.Envelope()
	s := &Status{
		Recording:  e.recorder.Recording(),
		GateState:  e.pipeline.GateState().String(),
		Reps:       e.recorder.Reps(),
		TUTSeconds: e.recorder.TUT().Seconds(),
		RMS:        e.last.RMS,
		Ratio:      e.last.Ratio,
		AverageV:   env.Average(),
		PeakV:      env.Peak(),
		MVCV:       e.settings.MVC,
		Hi:         e.settings.Hi,
		Lo:         e.settings.Lo,
		PresetID:   e.settings.PresetID,
		UpdatedAt:  e.pipeline.Now(),
	}
	if s.Recording {
		s.SetID = e.recorder.SetID()
		s.SetElapsed = s.UpdatedAt.Sub(e.recorder.StartedAt()).Seconds()
	}
	e.status.Store(s)
}

// publishStatusAsync refreshes the snapshot from outside Run when the engine
// is still alive, without waiting for it.
func (e *Engine) publishStatusAsync() {
	select {
	case e.inbox <- message{fn: e.publishStatus, done: make(chan struct{})}:
	default:
	}
}

// Status returns the latest snapshot.
func (e *Engine) Status() Status {
	s := *e.status.Load()
	s.Connected = e.connected.Load()
	s.DroppedBatches = e.dropped.Load()
	return s
}

// LatestFrame implements transport.FrameProvider.
func (e *Engine) LatestFrame() (transport.EnvelopeFrame, bool) {
	f := e.frame.Load()
	if f == nil {
		return transport.EnvelopeFrame{}, false
	}
	return *f, true
}

// History returns the finished sets, most recent first.
func (e *Engine) History() []history.SetSummary {
	return e.history.List()
}

// Settings returns the current calibration and threshold settings.
func (e *Engine) Settings() history.Settings {
	s := e.Status()
	return history.Settings{PresetID: s.PresetID, MVC: s.MVCV, Hi: s.Hi, Lo: s.Lo}
}

var _ transport.FrameProvider = (*Engine)(nil)
