// SPDX-License-Identifier: MIT
package engine

import (
	"context"
	"emgrep/internal/analysis"
	"emgrep/internal/history"
	"emgrep/internal/preset"
	"emgrep/internal/transport"
	"emgrep/pkg/utils"
	"errors"
	"testing"
	"time"
)

func calibratedStore(t *testing.T) *history.MemoryStore {
	return storeWithSettings(t, history.Settings{PresetID: "general", MVC: 1.0, Hi: 0.6, Lo: 0.3})
}

func TestEngineSingleRepScenario(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	h.connect()

	if _, err := h.engine.StartSet(context.Background()); err != nil {
		t.Fatalf("StartSet() error = %v", err)
	}

	h.feed(utils.GenerateConstant(testWindow, 0.8))
	if got := h.engine.Status().GateState; got != analysis.Engaged.String() {
		t.Fatalf("after strong window gate = %s, want %s", got, analysis.Engaged)
	}

	h.feed(utils.GenerateConstant(testWindow, 0.1))
	st := h.engine.Status()
	if st.GateState != analysis.Idle.String() {
		t.Fatalf("after weak window gate = %s, want %s", st.GateState, analysis.Idle)
	}
	if st.Reps != 1 {
		t.Fatalf("reps = %d, want 1", st.Reps)
	}

	summary, err := h.engine.StopSet(context.Background())
	if err != nil {
		t.Fatalf("StopSet() error = %v", err)
	}
	if summary.Reps != 1 {
		t.Errorf("summary reps = %d, want 1", summary.Reps)
	}
	// Two windows of 100 samples at 1 kHz: the rep spans one window period.
	if !utils.AlmostEqual(summary.TUTSeconds, 0.1, 1e-6) {
		t.Errorf("tut = %f, want 0.1", summary.TUTSeconds)
	}
	if !utils.AlmostEqual(summary.DurationSeconds, 0.2, 1e-6) {
		t.Errorf("duration = %f, want 0.2", summary.DurationSeconds)
	}
	if !almostEqual(summary.MVCV, 1.0) || !utils.AlmostEqual(summary.PeakV, 0.8, 1e-9) {
		t.Errorf("mvc/peak = %f/%f, want 1.0/0.8", summary.MVCV, summary.PeakV)
	}
	if !utils.AlmostEqual(summary.AvgV, 0.45, 1e-9) {
		t.Errorf("avg = %f, want 0.45", summary.AvgV)
	}
	if summary.PresetID != "general" || summary.ID == "" {
		t.Errorf("summary id/preset = %q/%q", summary.ID, summary.PresetID)
	}
	if !summary.Timestamp.Equal(testEpoch.Add(200 * time.Millisecond)) {
		t.Errorf("timestamp = %v, want stop time", summary.Timestamp)
	}

	if got := h.engine.History(); len(got) != 1 || got[0].ID != summary.ID {
		t.Errorf("History() = %+v", got)
	}
	stored, err := h.store.ListSets(context.Background())
	if err != nil || len(stored) != 1 {
		t.Fatalf("store holds %d sets, err %v", len(stored), err)
	}
}

func TestEngineTransportMessages(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	h.connect()
	if _, err := h.engine.StartSet(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.feed(utils.GenerateConstant(testWindow, 0.8), utils.GenerateConstant(testWindow, 0.1))
	if _, err := h.engine.StopSet(context.Background()); err != nil {
		t.Fatal(err)
	}

	var frames, sets int
	var kinds []string
	for _, m := range h.transport.Messages() {
		switch msg := m.(type) {
		case transport.EnvelopeFrame:
			frames++
			if msg.Seq != uint64(frames) {
				t.Errorf("frame seq = %d, want %d", msg.Seq, frames)
			}
		case transport.RepMessage:
			kinds = append(kinds, msg.Kind)
		case transport.SetMessage:
			sets++
			if _, ok := msg.Summary.(history.SetSummary); !ok {
				t.Errorf("set message carries %T", msg.Summary)
			}
		default:
			t.Errorf("unexpected message %T", m)
		}
	}
	if frames != 2 || sets != 1 {
		t.Errorf("frames=%d sets=%d, want 2 and 1", frames, sets)
	}
	if len(kinds) != 2 || kinds[0] != "rep_started" || kinds[1] != "rep_completed" {
		t.Errorf("rep kinds = %v", kinds)
	}

	frame, ok := h.engine.LatestFrame()
	if !ok || frame.Seq != 2 || frame.State != analysis.Idle.String() {
		t.Errorf("LatestFrame() = %+v, %v", frame, ok)
	}
}

func TestEngineWallClockTUT(t *testing.T) {
	clock := &fakeClock{now: testEpoch}
	cfg := testPipelineConfig()
	cfg.TimeBase = WallClock
	cfg.Clock = clock.Now

	h := startEngine(t, Options{Pipeline: cfg}, calibratedStore(t))
	h.connect()
	if _, err := h.engine.StartSet(context.Background()); err != nil {
		t.Fatal(err)
	}

	clock.Advance(100 * time.Millisecond)
	h.feed(utils.GenerateConstant(testWindow, 0.9))
	clock.Advance(250 * time.Millisecond)
	h.feed(utils.GenerateConstant(testWindow, 0.05))
	clock.Advance(50 * time.Millisecond)

	summary, err := h.engine.StopSet(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !utils.AlmostEqual(summary.TUTSeconds, 0.25, 1e-9) {
		t.Errorf("tut = %f, want 0.25", summary.TUTSeconds)
	}
	if !utils.AlmostEqual(summary.DurationSeconds, 0.4, 1e-9) {
		t.Errorf("duration = %f, want 0.4", summary.DurationSeconds)
	}
}

func TestEngineCountsRepsWithoutRecording(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	h.connect()

	h.feed(utils.GenerateConstant(testWindow, 0.8), utils.GenerateConstant(testWindow, 0.1))
	st := h.engine.Status()
	if st.Reps != 1 {
		t.Errorf("reps = %d, want 1", st.Reps)
	}
	if st.TUTSeconds != 0 {
		t.Errorf("tut = %f, want 0 outside a set", st.TUTSeconds)
	}

	if _, err := h.engine.StartSet(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := h.engine.Status(); st.Reps != 0 || !st.Recording || st.SetID == "" {
		t.Errorf("after StartSet status = %+v", st)
	}
}

func TestEngineRepSpanningSetStartKeepsFullTUT(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	h.connect()

	h.feed(utils.GenerateConstant(testWindow, 0.8), utils.GenerateConstant(testWindow, 0.8))
	if _, err := h.engine.StartSet(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.engine.Status().GateState; got != analysis.Engaged.String() {
		t.Fatalf("StartSet changed gate to %s, want %s", got, analysis.Engaged)
	}
	h.feed(utils.GenerateConstant(testWindow, 0.1))

	summary, err := h.engine.StopSet(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.Reps != 1 {
		t.Errorf("reps = %d, want 1", summary.Reps)
	}
	// The rep began one window before the set, so TUT exceeds the set length.
	if !utils.AlmostEqual(summary.TUTSeconds, 0.2, 1e-6) {
		t.Errorf("tut = %f, want 0.2", summary.TUTSeconds)
	}
	if !utils.AlmostEqual(summary.DurationSeconds, 0.1, 1e-6) {
		t.Errorf("duration = %f, want 0.1", summary.DurationSeconds)
	}
}

func TestEngineBatchesSplitAcrossWindows(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	h.connect()

	signal := utils.GenerateContraction(300, 300, 0.05, 0.9)
	h.feed(utils.Split(signal, 37)...)

	if st := h.engine.Status(); st.Reps != 1 {
		t.Errorf("reps = %d, want 1", st.Reps)
	}
}

func TestEnginePreconditions(t *testing.T) {
	ctx := context.Background()
	h := startEngine(t, Options{}, calibratedStore(t))

	if _, err := h.engine.StartSet(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("StartSet() disconnected error = %v, want ErrNotConnected", err)
	}
	if _, err := h.engine.Calibrate(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Calibrate() disconnected error = %v, want ErrNotConnected", err)
	}
	if _, err := h.engine.StopSet(ctx); !errors.Is(err, ErrNotRecording) {
		t.Errorf("StopSet() never started error = %v, want ErrNotRecording", err)
	}

	h.connect()
	if err := h.engine.Attach(ctx, newIdleSource()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Attach() error = %v, want ErrAlreadyConnected", err)
	}
	if _, err := h.engine.StartSet(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := h.engine.StartSet(ctx); !errors.Is(err, ErrAlreadyRecording) {
		t.Errorf("second StartSet() error = %v, want ErrAlreadyRecording", err)
	}
	if !h.engine.Status().Connected {
		t.Error("status should report connected")
	}
}

func TestEngineSourceFailureDisconnects(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))

	src := newIdleSource()
	errc := make(chan error, 1)
	go func() { errc <- h.engine.Attach(context.Background(), src) }()
	<-src.started

	linkLost := errors.New("link lost")
	src.fail <- linkLost

	select {
	case err := <-errc:
		if !errors.Is(err, linkLost) {
			t.Errorf("Attach() error = %v, want link lost", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Attach did not return")
	}
	if h.engine.Connected() {
		t.Error("engine still connected after source failure")
	}
	if _, err := h.engine.StartSet(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("StartSet() after failure error = %v", err)
	}
}

func TestEngineAttachResetsPipeline(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))

	src := newIdleSource()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.engine.Attach(ctx, src)
	}()
	<-src.started
	h.feed(utils.GenerateConstant(testWindow, 0.8))
	if h.engine.Status().PeakV == 0 {
		t.Fatal("expected a peak after one window")
	}
	cancel()
	<-done

	h.connect()
	h.feed()
	st := h.engine.Status()
	if st.PeakV != 0 || st.GateState != analysis.Idle.String() {
		t.Errorf("after reconnect peak=%f gate=%s, want fresh pipeline", st.PeakV, st.GateState)
	}
}

func TestEngineCalibrationOnlyRaisesMVC(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	h.connect()

	calibrate := func(amplitude float64) float64 {
		t.Helper()
		done := make(chan struct{})
		var (
			mvc float64
			err error
		)
		go func() {
			defer close(done)
			mvc, err = h.engine.CalibrateFor(context.Background(), 150*time.Millisecond)
		}()
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				if err != nil {
					t.Fatalf("Calibrate() error = %v", err)
				}
				return mvc
			case <-ticker.C:
				h.engine.Submit(utils.GenerateConstant(testWindow, amplitude))
			}
		}
	}

	if got := calibrate(0.5); got != 1.0 {
		t.Errorf("weaker contraction changed MVC to %f", got)
	}
	if got := calibrate(2.0); !utils.AlmostEqual(got, 2.0, 1e-9) {
		t.Errorf("stronger contraction gave MVC %f, want 2.0", got)
	}

	settings, err := h.store.LoadSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !utils.AlmostEqual(settings.MVC, 2.0, 1e-9) {
		t.Errorf("persisted MVC = %f, want 2.0", settings.MVC)
	}
}

func TestEngineCalibrationWithoutSamplesKeepsMVC(t *testing.T) {
	h := startEngine(t, Options{CalibrationDuration: 20 * time.Millisecond}, calibratedStore(t))
	h.connect()

	mvc, err := h.engine.Calibrate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if mvc != 1.0 {
		t.Errorf("MVC = %f, want unchanged 1.0", mvc)
	}
}

func TestEngineCalibrationLeavesLiveWindowIntact(t *testing.T) {
	h := startEngine(t, Options{CalibrationDuration: 20 * time.Millisecond}, calibratedStore(t))
	h.connect()

	// Half a window is pending in the live reducer across the calibration.
	h.feed(utils.GenerateConstant(testWindow/2, 0.8))
	if _, err := h.engine.Calibrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.feed(utils.GenerateConstant(testWindow/2, 0.8))

	if st := h.engine.Status(); !utils.AlmostEqual(st.RMS, 0.8, 1e-9) {
		t.Errorf("live RMS = %f, want 0.8 from the completed window", st.RMS)
	}
}

func TestEngineApplyPreset(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	ctx := context.Background()

	p, err := h.engine.ApplyPreset(ctx, "strength")
	if err != nil {
		t.Fatal(err)
	}
	st := h.engine.Status()
	if st.PresetID != "strength" || st.Hi != p.Hi || st.Lo != p.Lo {
		t.Errorf("status after preset = %+v", st)
	}
	saved, _ := h.store.LoadSettings(ctx)
	if saved.PresetID != "strength" || saved.Hi != p.Hi {
		t.Errorf("persisted settings = %+v", saved)
	}
	if saved.MVC != 1.0 {
		t.Errorf("preset changed MVC to %f", saved.MVC)
	}

	if _, err := h.engine.ApplyPreset(ctx, "nope"); !errors.Is(err, preset.ErrUnknownPreset) {
		t.Errorf("unknown preset error = %v", err)
	}
}

func TestEngineSetThresholds(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	ctx := context.Background()

	if err := h.engine.SetThresholds(ctx, analysis.Thresholds{Hi: 0.3, Lo: 0.6}); !errors.Is(err, analysis.ErrInvalidThresholds) {
		t.Errorf("inverted pair error = %v", err)
	}
	if st := h.engine.Status(); st.Hi != 0.6 || st.Lo != 0.3 {
		t.Errorf("rejected pair changed thresholds to %f/%f", st.Hi, st.Lo)
	}

	if err := h.engine.SetThresholds(ctx, analysis.Thresholds{Hi: 0.9, Lo: 0.5}); err != nil {
		t.Fatal(err)
	}
	if got := h.engine.Settings(); got.Hi != 0.9 || got.Lo != 0.5 {
		t.Errorf("Settings() = %+v", got)
	}

	// A 0.8 window no longer engages the gate.
	h.connect()
	h.feed(utils.GenerateConstant(testWindow, 0.8))
	if st := h.engine.Status(); st.GateState != analysis.Idle.String() {
		t.Errorf("gate = %s under raised threshold", st.GateState)
	}
}

func TestNewRestoresSettings(t *testing.T) {
	tests := []struct {
		name   string
		stored history.Settings
		want   history.Settings
	}{
		{"empty", history.Settings{}, history.Settings{PresetID: "general", MVC: 0, Hi: 0.6, Lo: 0.3}},
		{"persisted", history.Settings{PresetID: "endurance", MVC: 0.7, Hi: 0.45, Lo: 0.2},
			history.Settings{PresetID: "endurance", MVC: 0.7, Hi: 0.45, Lo: 0.2}},
		{"unknown preset", history.Settings{PresetID: "gone", MVC: 0.4, Hi: 0.5, Lo: 0.2},
			history.Settings{PresetID: "general", MVC: 0.4, Hi: 0.5, Lo: 0.2}},
		{"inverted thresholds", history.Settings{PresetID: "strength", Hi: 0.2, Lo: 0.5},
			history.Settings{PresetID: "strength", Hi: 0.7, Lo: 0.35}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(context.Background(), Options{Pipeline: testPipelineConfig()},
				storeWithSettings(t, tt.stored), nil)
			if err != nil {
				t.Fatal(err)
			}
			if got := e.Settings(); got != tt.want {
				t.Errorf("Settings() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSubmitDropsWhenInboxFull(t *testing.T) {
	e, err := New(context.Background(), Options{Pipeline: testPipelineConfig(), QueueSize: 2},
		history.NewMemoryStore(), nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		e.Submit(utils.GenerateConstant(10, 0.1))
	}
	e.Submit(nil)

	if got := e.Status().DroppedBatches; got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

func TestLosslessSubmitWaitsForSpace(t *testing.T) {
	h := startEngine(t, Options{QueueSize: 1, Lossless: true}, history.NewMemoryStore())
	h.connect()

	var batches [][]float64
	for i := 0; i < 20; i++ {
		batches = append(batches, utils.GenerateConstant(testWindow, 0.1))
	}
	h.feed(batches...)

	frames := 0
	for _, m := range h.transport.Messages() {
		if _, ok := m.(transport.EnvelopeFrame); ok {
			frames++
		}
	}
	if frames != 20 {
		t.Errorf("frames = %d, want 20", frames)
	}
	if got := h.engine.Status().DroppedBatches; got != 0 {
		t.Errorf("dropped = %d, want 0", got)
	}
}

type failingStore struct {
	*history.MemoryStore
}

func (failingStore) AppendSet(context.Context, history.SetSummary) error {
	return errors.New("disk full")
}

func (failingStore) SaveSettings(context.Context, history.Settings) error {
	return errors.New("disk full")
}

func TestEnginePersistFailureKeepsState(t *testing.T) {
	h := startEngine(t, Options{}, failingStore{history.NewMemoryStore()})
	ctx := context.Background()
	h.connect()

	if _, err := h.engine.StartSet(ctx); err != nil {
		t.Fatal(err)
	}
	summary, err := h.engine.StopSet(ctx)
	if !errors.Is(err, history.ErrPersist) {
		t.Fatalf("StopSet() error = %v, want ErrPersist", err)
	}
	if summary.ID == "" {
		t.Error("summary should be returned alongside the persist error")
	}
	if got := h.engine.History(); len(got) != 1 {
		t.Errorf("in-memory history has %d sets, want 1", len(got))
	}

	if err := h.engine.SetThresholds(ctx, analysis.Thresholds{Hi: 0.8, Lo: 0.4}); !errors.Is(err, history.ErrPersist) {
		t.Errorf("SetThresholds() error = %v, want ErrPersist", err)
	}
	if st := h.engine.Status(); st.Hi != 0.8 {
		t.Errorf("in-memory hi = %f, want 0.8", st.Hi)
	}
}

func TestEngineStoppedRejectsControl(t *testing.T) {
	h := startEngine(t, Options{}, calibratedStore(t))
	h.stop()

	if _, err := h.engine.StartSet(context.Background()); !errors.Is(err, ErrEngineStopped) {
		t.Errorf("StartSet() after stop error = %v, want ErrEngineStopped", err)
	}
}
