// Package audio defines the types and interfaces shared by everything that
// produces or consumes sound in duckwave.
//
// The central abstraction is [Sink] — a gain-controllable audio producer. The
// ducking controller is written once against this interface and never needs
// to know whether it holds a decoded track or a synthesized fallback tone.
//
// This package lives under pkg/ because external playback adapters are
// expected to implement [Sink].
package audio

import (
	"errors"
	"time"
)

// ErrSinkClosed is returned by [Sink.SetGain] after the sink has been closed.
// Gain changes on a closed sink are rejected rather than silently dropped so
// that callers can prune dead registrations.
var ErrSinkClosed = errors.New("audio: sink is closed")

// Sink is a gain-controllable audio producer. Implementations must be safe
// for concurrent use: gain changes arrive from the ducking controller's event
// path and from ramp ticker goroutines while the playback path is reading
// samples.
//
// Gains are linear amplitude factors in [0.0, 1.0]. Implementations clamp
// out-of-range values instead of returning an error — gain changes run on
// behalf of the real-time path and must not fail loudly.
type Sink interface {
	// Gain returns the sink's current gain.
	Gain() float64

	// SetGain applies g immediately. It is the per-step primitive that ramps
	// are built from; callers wanting an audible fade should use RampGain.
	// Returns an error only when the sink can no longer accept gain changes
	// (e.g., it has been closed).
	SetGain(g float64) error

	// RampGain schedules a smooth transition from the current gain to target
	// over dur. The ramp runs on its own timer, decoupled from frame
	// processing. Issuing a new ramp supersedes any ramp already in flight:
	// the old ramp's remaining steps are abandoned and the new one starts
	// from the sink's current (possibly partial) gain.
	RampGain(target float64, dur time.Duration)
}

// FrameSource is implemented by sinks that generate audio, pulled by the
// playback pump. NextFrame returns up to n samples with the sink's gain
// already applied; ok is false when the source is exhausted.
type FrameSource interface {
	NextFrame(n int) (frame Frame, ok bool)
}

// ClampGain bounds g to the valid linear gain range [0.0, 1.0].
func ClampGain(g float64) float64 {
	switch {
	case g < 0:
		return 0
	case g > 1:
		return 1
	}
	return g
}
