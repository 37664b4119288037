// Package app wires the duckwave subsystems into a running engine.
//
// The App struct owns the full lifecycle: New creates and connects the
// capture source, VAD detector, ducking controller, and playback sink;
// Run executes the frame loop alongside the metrics/health HTTP server;
// Shutdown tears everything down in order.
//
// For testing, inject fakes via functional options (WithSource, WithSink,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config through the factory registry.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mkarlsen/duckwave/internal/capture"
	"github.com/mkarlsen/duckwave/internal/config"
	"github.com/mkarlsen/duckwave/internal/duck"
	"github.com/mkarlsen/duckwave/internal/health"
	"github.com/mkarlsen/duckwave/internal/observe"
	"github.com/mkarlsen/duckwave/pkg/audio"
	"github.com/mkarlsen/duckwave/pkg/audio/tone"
	"github.com/mkarlsen/duckwave/pkg/audio/track"
	"github.com/mkarlsen/duckwave/pkg/vad"
)

// staleCaptureAfter is how long the readiness probe tolerates not seeing a
// capture frame before reporting the source unhealthy.
const staleCaptureAfter = 3 * time.Second

// App owns all subsystem lifetimes and orchestrates the
// capture → VAD → ducking pipeline.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	detector   *vad.Detector
	controller *duck.Controller
	source     capture.Source
	sink       audio.Sink
	registry   *config.Registry

	mu        sync.Mutex
	lastFrame time.Time

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a capture source instead of creating one from config.
func WithSource(s capture.Source) Option {
	return func(a *App) { a.source = s }
}

// WithSink injects a playback sink instead of creating one from config.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithMetrics injects metric instruments instead of using the global set.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithRegistry injects a factory registry instead of [BuiltinRegistry].
func WithRegistry(r *config.Registry) Option {
	return func(a *App) { a.registry = r }
}

// BuiltinRegistry returns a registry with the built-in source and sink
// factories wired: WAV replay and WebSocket capture, track and tone playback.
// Sinks are built with rampSteps gain steps per fade.
func BuiltinRegistry(rampSteps int) *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterSource(config.SourceWAV, func(_ context.Context, cfg config.CaptureConfig) (capture.Source, error) {
		return capture.OpenWAV(cfg.WAVPath, capture.WithFrameSize(cfg.FrameSizeMs))
	})
	reg.RegisterSource(config.SourceWebSocket, func(ctx context.Context, cfg config.CaptureConfig) (capture.Source, error) {
		return capture.DialWS(ctx, cfg.WebSocketURL, cfg.SampleRate)
	})

	reg.RegisterSink(config.SinkTrack, func(cfg config.PlaybackConfig) (audio.Sink, error) {
		return track.Open(cfg.TrackPath, track.WithLoop(cfg.Loop), track.WithRampSteps(rampSteps))
	})
	reg.RegisterSink(config.SinkTone, func(cfg config.PlaybackConfig) (audio.Sink, error) {
		return tone.New(cfg.ToneFrequencyHz, tone.WithRampSteps(rampSteps)), nil
	})

	return reg
}

// New creates an App by wiring the detector, controller, capture source, and
// playback sink together. Use Option functions to inject test doubles.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.registry == nil {
		a.registry = BuiltinRegistry(cfg.Ducking.RampSteps)
	}

	a.detector = vad.New(vad.Config{
		SmoothingFactor:   cfg.VAD.SmoothingFactor,
		BaseThreshold:     cfg.VAD.BaseThreshold,
		Sensitivity:       cfg.VAD.Sensitivity,
		HistorySize:       cfg.VAD.HistorySize,
		MinSpeechDuration: cfg.VAD.MinSpeechDuration(),
		SilenceTimeout:    cfg.VAD.SilenceTimeout(),
	})
	if !cfg.VAD.Enabled {
		a.detector.SetEnabled(false, time.Now())
	}

	a.controller = duck.New(
		duck.WithDuckingFactor(cfg.Ducking.Factor),
		duck.WithFadeDuration(cfg.Ducking.FadeDuration()),
		duck.WithMetrics(a.metrics),
	)
	a.detector.AddListener(a.controller)

	if a.source == nil {
		src, err := a.registry.CreateSource(ctx, cfg.Capture)
		if err != nil {
			return nil, fmt.Errorf("app: create capture source: %w", err)
		}
		a.source = src
	}
	a.closers = append(a.closers, a.source.Close)

	if a.sink == nil {
		snk, err := a.registry.CreateSink(cfg.Playback)
		if err != nil {
			return nil, fmt.Errorf("app: create playback sink: %w", err)
		}
		a.sink = snk
	}
	if c, ok := a.sink.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	a.controller.Register(a.sink)

	return a, nil
}

// Run executes the frame loop, playback pump, and HTTP server until ctx is
// cancelled or the capture stream ends. The whole session runs under one
// span; the per-frame path is never traced.
func (a *App) Run(ctx context.Context) error {
	ctx, span := observe.StartSpan(ctx, "engine.run")
	defer span.End()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.frameLoop(ctx) })
	g.Go(func() error { return a.playbackPump(ctx) })
	g.Go(func() error { return a.serveHTTP(ctx) })

	observe.Logger(ctx).Info("app running",
		"source", a.cfg.Capture.Source,
		"sink", a.cfg.Playback.Sink,
		"listen_addr", a.cfg.Server.ListenAddr,
	)
	return g.Wait()
}

// frameLoop feeds capture frames through the detector. Frame timestamps for
// the state machine come from the wall clock at delivery time, matching when
// a capture callback would run.
func (a *App) frameLoop(ctx context.Context) error {
	frames := a.source.Frames()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				slog.Info("app: capture stream ended")
				return nil
			}
			start := time.Now()
			a.detector.ProcessFrame(frame, start)

			a.mu.Lock()
			a.lastFrame = start
			a.mu.Unlock()

			a.metrics.FramesProcessed.Add(ctx, 1)
			a.metrics.FrameDuration.Record(ctx, time.Since(start).Seconds())
		}
	}
}

// playbackPump drains the sink at the capture frame cadence so playback
// position (and looping) advances, standing in for an output device. Sinks
// that do not produce frames are left alone.
func (a *App) playbackPump(ctx context.Context) error {
	fs, ok := a.sink.(audio.FrameSource)
	if !ok {
		return nil
	}

	period := time.Duration(a.cfg.Capture.FrameSizeMs) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	rate := a.cfg.Capture.SampleRate
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n := rate * a.cfg.Capture.FrameSizeMs / 1000
			frame, ok := fs.NextFrame(max(n, 1))
			if !ok {
				slog.Info("app: playback sink exhausted")
				return nil
			}
			// Track the sink's own rate so the next pull covers one period.
			if frame.SampleRate > 0 {
				rate = frame.SampleRate
			}
		}
	}
}

// serveHTTP runs the metrics/health server until ctx is cancelled.
func (a *App) serveHTTP(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.checkers()...).Register(mux)

	srv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("app: http shutdown error", "err", err)
		}
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	}
}

// checkers builds the readiness probes: the capture source must have
// delivered a frame recently and a playback sink must be registered.
func (a *App) checkers() []health.Checker {
	return []health.Checker{
		{
			Name: "capture",
			Check: func(context.Context) error {
				a.mu.Lock()
				last := a.lastFrame
				a.mu.Unlock()
				if last.IsZero() {
					return errors.New("no capture frame received yet")
				}
				if age := time.Since(last); age > staleCaptureAfter {
					return fmt.Errorf("last capture frame %s ago", age.Round(time.Millisecond))
				}
				return nil
			},
		},
		{
			Name: "playback",
			Check: func(context.Context) error {
				if a.controller.Sinks() == 0 {
					return errors.New("no playback sink registered")
				}
				return nil
			},
		},
	}
}

// ─── Runtime configuration ──────────────────────────────────────────────────

// ApplyDiff hot-applies the reloadable fields of a changed config. Fields
// that need a restart are logged and skipped.
func (a *App) ApplyDiff(d config.ConfigDiff, cfg *config.Config) {
	if d.VADEnabledChanged {
		a.SetVADEnabled(cfg.VAD.Enabled)
	}
	if d.BaseThresholdChanged {
		a.detector.SetBaseThreshold(cfg.VAD.BaseThreshold)
	}
	if d.SensitivityChanged {
		a.detector.SetSensitivity(cfg.VAD.Sensitivity)
	}
	if d.MinSpeechDurationChanged {
		a.detector.SetMinSpeechDuration(cfg.VAD.MinSpeechDuration())
	}
	if d.SilenceTimeoutChanged {
		a.detector.SetSilenceTimeout(cfg.VAD.SilenceTimeout())
	}
	if d.DuckingFactorChanged {
		a.controller.SetDuckingFactor(cfg.Ducking.Factor)
	}
	if d.FadeDurationChanged {
		a.controller.SetFadeDuration(cfg.Ducking.FadeDuration())
	}
	if d.RequiresRestart {
		slog.Warn("app: config change requires restart, ignoring non-reloadable fields")
	}
}

// SetVADEnabled toggles speech detection. Disabling mid-speech restores
// ducked sinks immediately via the forced SpeechEnded.
func (a *App) SetVADEnabled(on bool) {
	a.detector.SetEnabled(on, time.Now())
}

// SetVADThreshold updates the adaptive threshold floor, clamped to the valid
// range. Takes effect on the next frame.
func (a *App) SetVADThreshold(v float64) {
	a.detector.SetBaseThreshold(v)
}

// SetMinSpeechDuration updates the speech-onset debounce.
func (a *App) SetMinSpeechDuration(d time.Duration) {
	a.detector.SetMinSpeechDuration(d)
}

// SetSilenceTimeout updates the speech-end hangover.
func (a *App) SetSilenceTimeout(d time.Duration) {
	a.detector.SetSilenceTimeout(d)
}

// SetDuckingFactor updates the duck gain multiplier, clamped to [0.1, 1.0].
// Takes effect on the next speech episode.
func (a *App) SetDuckingFactor(f float64) {
	a.controller.SetDuckingFactor(f)
}

// SetFadeDuration updates the gain ramp length.
func (a *App) SetFadeDuration(d time.Duration) {
	a.controller.SetFadeDuration(d)
}

// RegisterSink attaches an additional playback sink to the ducking
// controller. If speech is active the sink is ducked at attach time.
func (a *App) RegisterSink(s audio.Sink) {
	a.controller.Register(s)
}

// UnregisterSink detaches a sink. Its gain is left as-is.
func (a *App) UnregisterSink(s audio.Sink) {
	a.controller.Unregister(s)
}

// Detector exposes the speech detector for diagnostics.
func (a *App) Detector() *vad.Detector { return a.detector }

// Controller exposes the ducking controller for diagnostics.
func (a *App) Controller() *duck.Controller { return a.controller }

// Shutdown tears the engine down in order: detection is disabled first so
// any in-progress duck is released, then the source and sink are closed.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.detector.SetEnabled(false, time.Now())

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
