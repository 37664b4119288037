// Package duck implements the ducking controller: the consumer of speech
// events that lowers background audio while the user is speaking and restores
// it afterwards.
//
// The controller subscribes to the VAD detector's SpeechStarted/SpeechEnded
// events and drives gain ramps on every registered [audio.Sink]. It never
// re-derives VAD state itself — playback switches are handled orthogonally by
// re-attaching the current duck state to the newly registered sink.
package duck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mkarlsen/duckwave/internal/observe"
	"github.com/mkarlsen/duckwave/pkg/audio"
	"github.com/mkarlsen/duckwave/pkg/vad"
)

// Compile-time interface assertion.
var _ vad.Listener = (*Controller)(nil)

// Default configuration values. See [Controller].
const (
	DefaultDuckingFactor = 0.2
	DefaultFadeDuration  = 100 * time.Millisecond
)

// Clamp bounds for the ducking factor.
const (
	MinDuckingFactor = 0.1
	MaxDuckingFactor = 1.0
)

// Option configures a [Controller] during construction.
type Option func(*Controller)

// WithDuckingFactor sets the gain multiplier applied while speech is active,
// clamped to [0.1, 1.0].
func WithDuckingFactor(f float64) Option {
	return func(c *Controller) { c.factor = clampFactor(f) }
}

// WithFadeDuration sets how long each duck/restore gain ramp takes.
// Non-positive durations fall back to the default.
func WithFadeDuration(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.fade = d
		}
	}
}

// WithMetrics attaches metric instruments. When nil, nothing is recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// Controller ducks and restores registered sinks in response to speech
// events. It implements [vad.Listener].
//
// All shared state (the duck-target map and the isDucked flag) is mutated
// only under the controller's mutex, so capture-path events and registration
// calls from other goroutines are serialized and never interleave partial
// updates. The ramps themselves run on the sinks' own timers.
type Controller struct {
	metrics *observe.Metrics

	mu      sync.Mutex
	factor  float64
	fade    time.Duration
	ducked  bool
	sinks   []audio.Sink
	targets map[audio.Sink]float64 // pre-duck gain snapshots, live while ducked

	speechStart time.Time // when the current episode began, for metrics
}

// New creates a Controller with no registered sinks.
func New(opts ...Option) *Controller {
	c := &Controller{
		factor:  DefaultDuckingFactor,
		fade:    DefaultFadeDuration,
		targets: make(map[audio.Sink]float64),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Register adds s to the controlled set. If a speech episode is in progress
// the new sink inherits the ducked state: its gain is snapshotted and ducked
// immediately at attach time, without a fade, so a track switch mid-duck
// never plays at full volume.
func (c *Controller) Register(s audio.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, existing := range c.sinks {
		if existing == s {
			return
		}
	}
	c.sinks = append(c.sinks, s)
	if c.metrics != nil {
		c.metrics.ActiveSinks.Add(context.Background(), 1)
	}

	if !c.ducked {
		return
	}
	c.duckSink(s, 0, "attach")
}

// Unregister removes s from the controlled set. Any duck target for s is
// discarded without restoring its gain — the sink is being replaced, not
// paused.
func (c *Controller) Unregister(s audio.Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.sinks {
		if existing == s {
			c.sinks = append(c.sinks[:i], c.sinks[i+1:]...)
			delete(c.targets, s)
			if c.metrics != nil {
				c.metrics.ActiveSinks.Add(context.Background(), -1)
			}
			return
		}
	}
}

// SpeechStarted ducks every registered sink: each sink's current gain is
// snapshotted, then ramped down to gain*factor over the fade duration.
// A second SpeechStarted while already ducked is a no-op, so the snapshot
// always reflects the gain before the first duck, never an intermediate
// ducked value.
func (c *Controller) SpeechStarted(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ducked {
		return
	}
	c.ducked = true
	c.speechStart = now

	for _, s := range c.sinks {
		c.duckSink(s, c.fade, "duck")
	}
	if c.metrics != nil {
		c.metrics.Ducks.Add(context.Background(), int64(len(c.sinks)))
	}
	slog.Debug("duck: speech started, ducking", "sinks", len(c.sinks), "factor", c.factor)
}

// SpeechEnded restores every sink with a live duck target to its snapshotted
// pre-duck gain and clears the targets. A SpeechEnded while not ducked is a
// no-op.
func (c *Controller) SpeechEnded(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ducked {
		return
	}
	c.ducked = false

	restored := 0
	for _, s := range c.sinks {
		pre, ok := c.targets[s]
		if !ok {
			continue
		}
		c.ramp(s, pre, "restore")
		restored++
	}
	clear(c.targets)

	if c.metrics != nil {
		ctx := context.Background()
		c.metrics.Restores.Add(ctx, int64(restored))
		c.metrics.SpeechEpisodes.Add(ctx, 1)
		if !c.speechStart.IsZero() {
			c.metrics.SpeechEpisodeDuration.Record(ctx, now.Sub(c.speechStart).Seconds())
		}
	}
	slog.Debug("duck: speech ended, restoring", "sinks", restored)
}

// duckSink snapshots s's current gain and lowers it by the ducking factor,
// immediately when fade is zero (the attach path) and as a ramp otherwise.
// The whole block runs under a panic guard: a sink that panics in Gain or in
// the gain change is skipped without disturbing the remaining sinks or the
// detector, and its duck target is never recorded. Must be called with c.mu
// held.
func (c *Controller) duckSink(s audio.Sink, fade time.Duration, op string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("duck: sink panicked during gain change", "op", op, "panic", r)
			if c.metrics != nil {
				c.metrics.RecordSinkFailure(context.Background(), op)
			}
		}
	}()

	pre := s.Gain()
	c.targets[s] = pre

	if fade <= 0 {
		if err := s.SetGain(pre * c.factor); err != nil {
			slog.Warn("duck: failed to duck newly attached sink", "err", err)
			if c.metrics != nil {
				c.metrics.RecordSinkFailure(context.Background(), op)
			}
		}
		return
	}
	s.RampGain(pre*c.factor, fade)
}

// ramp issues a gain ramp on s, isolating any sink panic so one failing sink
// cannot prevent restoring the others, and cannot corrupt the detector.
// Must be called with c.mu held.
func (c *Controller) ramp(s audio.Sink, target float64, op string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("duck: sink panicked during gain change", "op", op, "panic", r)
			if c.metrics != nil {
				c.metrics.RecordSinkFailure(context.Background(), op)
			}
		}
	}()
	s.RampGain(target, c.fade)
}

// IsDucked reports whether a speech episode currently holds the sinks ducked.
func (c *Controller) IsDucked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ducked
}

// Sinks returns the number of registered sinks.
func (c *Controller) Sinks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sinks)
}

// SetDuckingFactor updates the duck gain multiplier at runtime, clamped to
// [0.1, 1.0]. Takes effect on the next speech episode.
func (c *Controller) SetDuckingFactor(f float64) {
	f = clampFactor(f)
	c.mu.Lock()
	c.factor = f
	c.mu.Unlock()
}

// SetFadeDuration updates the ramp length at runtime. Non-positive values are
// ignored with a warning.
func (c *Controller) SetFadeDuration(d time.Duration) {
	if d <= 0 {
		slog.Warn("duck: ignoring non-positive fade_duration", "value", d)
		return
	}
	c.mu.Lock()
	c.fade = d
	c.mu.Unlock()
}

func clampFactor(f float64) float64 {
	if f < MinDuckingFactor {
		slog.Warn("duck: ducking_factor below minimum, clamping", "value", f, "clamped", MinDuckingFactor)
		return MinDuckingFactor
	}
	if f > MaxDuckingFactor {
		slog.Warn("duck: ducking_factor above maximum, clamping", "value", f, "clamped", MaxDuckingFactor)
		return MaxDuckingFactor
	}
	return f
}
