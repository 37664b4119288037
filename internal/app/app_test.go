package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/mkarlsen/duckwave/internal/app"
	"github.com/mkarlsen/duckwave/internal/capture"
	"github.com/mkarlsen/duckwave/internal/config"
	"github.com/mkarlsen/duckwave/internal/observe"
	"github.com/mkarlsen/duckwave/pkg/audio"
	"github.com/mkarlsen/duckwave/pkg/audio/mock"
)

// testConfig returns a config with timings shrunk so a full speech episode
// fits in a few hundred milliseconds of test time.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Capture.WAVPath = "unused.wav"
	cfg.Capture.FrameSizeMs = 10
	cfg.VAD.MinSpeechDurationMs = 20
	cfg.VAD.SilenceTimeoutMs = 50
	cfg.Ducking.FadeDurationMs = 10
	return cfg
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// frame builds a capture frame of constant amplitude.
func frame(amplitude float64) audio.Frame {
	samples := make([]float64, 480)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.Frame{Samples: samples, SampleRate: 48000}
}

// waitForGain polls until the sink settles at want.
func waitForGain(t *testing.T, s audio.Sink, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Gain() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("gain = %v, want %v", s.Gain(), want)
}

func TestEndToEndDuckAndRestore(t *testing.T) {
	cfg := testConfig()
	src := capture.NewChanSource(64)
	sink := mock.NewSink(1.0, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := app.New(ctx, cfg, app.WithSource(src), app.WithSink(sink), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- engine.Run(ctx) }()

	// Establish a silence baseline, then speak long enough to clear the
	// speech-onset debounce.
	for range 10 {
		src.Push(frame(0.0005))
		time.Sleep(2 * time.Millisecond)
	}
	for range 8 {
		src.Push(frame(0.5))
		time.Sleep(10 * time.Millisecond)
	}
	waitForGain(t, sink, 1.0*0.2)
	if !engine.Controller().IsDucked() {
		t.Fatal("IsDucked = false while speaking")
	}

	// Go quiet past the hangover and expect the restore.
	for range 15 {
		src.Push(frame(0.0005))
		time.Sleep(10 * time.Millisecond)
	}
	waitForGain(t, sink, 1.0)
	if engine.Controller().IsDucked() {
		t.Fatal("IsDucked = true after silence")
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run never returned after cancel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestShutdownReleasesActiveDuck(t *testing.T) {
	cfg := testConfig()
	src := capture.NewChanSource(4)
	sink := mock.NewSink(0.8, 4)

	engine, err := app.New(context.Background(), cfg, app.WithSource(src), app.WithSink(sink), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	engine.Controller().SpeechStarted(time.Now())
	waitForGain(t, sink, 0.8*0.2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	waitForGain(t, sink, 0.8)

	// The capture source must be closed.
	select {
	case _, ok := <-src.Frames():
		if ok {
			t.Fatal("unexpected frame from closed source")
		}
	case <-time.After(time.Second):
		t.Fatal("source not closed by Shutdown")
	}

	// Shutdown is idempotent.
	if err := engine.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestApplyDiffHotUpdates(t *testing.T) {
	cfg := testConfig()
	src := capture.NewChanSource(4)
	sink := mock.NewSink(1.0, 4)

	engine, err := app.New(context.Background(), cfg, app.WithSource(src), app.WithSink(sink), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	updated := testConfig()
	updated.VAD.Enabled = false
	updated.Ducking.Factor = 0.5

	engine.ApplyDiff(config.Diff(cfg, updated), updated)

	if engine.Detector().Enabled() {
		t.Fatal("detector still enabled after reload")
	}

	// The new factor applies to the next episode.
	engine.Controller().SpeechStarted(time.Now())
	waitForGain(t, sink, 0.5)
	engine.Controller().SpeechEnded(time.Now())
	waitForGain(t, sink, 1.0)
}

func TestRuntimeSetters(t *testing.T) {
	cfg := testConfig()
	src := capture.NewChanSource(4)
	sink := mock.NewSink(1.0, 4)

	engine, err := app.New(context.Background(), cfg, app.WithSource(src), app.WithSink(sink), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	engine.SetDuckingFactor(0.4)
	engine.SetFadeDuration(5 * time.Millisecond)
	engine.SetVADThreshold(0.05)
	engine.SetMinSpeechDuration(40 * time.Millisecond)
	engine.SetSilenceTimeout(80 * time.Millisecond)

	engine.Controller().SpeechStarted(time.Now())
	waitForGain(t, sink, 0.4)
	engine.Controller().SpeechEnded(time.Now())
	waitForGain(t, sink, 1.0)
}

func TestDisabledVADNeverDucks(t *testing.T) {
	cfg := testConfig()
	cfg.VAD.Enabled = false
	src := capture.NewChanSource(4)
	sink := mock.NewSink(1.0, 4)

	engine, err := app.New(context.Background(), cfg, app.WithSource(src), app.WithSink(sink), app.WithMetrics(testMetrics(t)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if engine.Detector().Enabled() {
		t.Fatal("detector enabled despite disabled config")
	}

	for range 20 {
		engine.Detector().ProcessFrame(frame(0.5), time.Now())
	}
	if engine.Controller().IsDucked() {
		t.Fatal("ducked while detection is disabled")
	}
}

func TestBuiltinRegistryAppliesRampSteps(t *testing.T) {
	cfg := testConfig()
	cfg.Playback.Sink = config.SinkTone
	cfg.Ducking.RampSteps = 1

	reg := app.BuiltinRegistry(cfg.Ducking.RampSteps)
	sink, err := reg.CreateSink(cfg.Playback)
	if err != nil {
		t.Fatalf("CreateSink: %v", err)
	}

	// A single-step ramp jumps straight to the target at the end of the
	// fade. With the default step count the gain would already be moving
	// a quarter of the way in.
	sink.RampGain(0.2, 400*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	if got := sink.Gain(); got != 1.0 {
		t.Fatalf("gain = %v before the single step, want untouched 1.0", got)
	}
	waitForGain(t, sink, 0.2)
}

func TestNewFailsWithoutFactory(t *testing.T) {
	cfg := testConfig()
	_, err := app.New(context.Background(), cfg, app.WithRegistry(config.NewRegistry()), app.WithMetrics(testMetrics(t)))
	if !errors.Is(err, config.ErrFactoryNotRegistered) {
		t.Fatalf("New error = %v, want ErrFactoryNotRegistered", err)
	}
}
