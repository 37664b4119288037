// Package vad implements energy-based Voice Activity Detection with
// hysteresis.
//
// The pipeline is: RMS energy per frame ([RMS]) → exponentially smoothed
// estimate and adaptive threshold ([Tracker]) → debounced speech state
// machine ([Detector]). The detector is advanced by explicit
// [Detector.ProcessFrame] calls with the timestamp passed in rather than read
// from a wall clock, so the logic is deterministic and unit-testable without
// real-time delays.
//
// ProcessFrame is synchronous by design: it returns immediately, making it
// suitable for the real-time capture callback that must never block. Events
// are delivered to registered [Listener]s inline on the calling goroutine,
// strictly ordered by frame arrival.
package vad

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mkarlsen/duckwave/pkg/audio"
)

// Detector is the speech state machine for one capture session. Create one
// with [New] when the microphone opens and discard it when the session ends;
// its smoothed-energy state spans the whole session.
//
// ProcessFrame and SetEnabled must be called from a single goroutine (the
// frame-processing loop). State inspection and the runtime setters are safe
// to call from any goroutine.
type Detector struct {
	mu      sync.Mutex
	cfg     Config
	tracker *Tracker

	enabled bool
	state   State

	// speechStart is when the current above-threshold run began (valid in
	// PendingSpeech). lastSpeech is the last above-threshold frame time
	// (valid in Active and PendingSilence).
	speechStart time.Time
	lastSpeech  time.Time

	lastSmoothed  float64
	lastThreshold float64

	listeners []Listener
}

// New creates an enabled Detector in the Silent state. Out-of-range config
// values are clamped with a logged warning.
func New(cfg Config) *Detector {
	cfg = cfg.normalize()
	return &Detector{
		cfg:     cfg,
		tracker: NewTracker(cfg.SmoothingFactor, cfg.BaseThreshold, cfg.Sensitivity, cfg.HistorySize),
		enabled: true,
	}
}

// AddListener registers l to receive speech events. Listeners are invoked in
// registration order.
func (d *Detector) AddListener(l Listener) {
	d.mu.Lock()
	d.listeners = append(d.listeners, l)
	d.mu.Unlock()
}

// event identifies which notification to deliver after a transition.
type event int

const (
	evNone event = iota
	evStarted
	evEnded
)

// ProcessFrame folds one captured frame into the detector at time now and
// returns the state after the transition. While the detector is disabled the
// frame is ignored entirely.
func (d *Detector) ProcessFrame(frame audio.Frame, now time.Time) State {
	d.mu.Lock()
	if !d.enabled {
		st := d.state
		d.mu.Unlock()
		return st
	}

	smoothed, threshold := d.tracker.Update(RMS(frame.Samples))
	d.lastSmoothed, d.lastThreshold = smoothed, threshold

	ev := d.advance(smoothed > threshold, now)
	st := d.state
	listeners := d.listeners
	d.mu.Unlock()

	d.emit(listeners, ev, now)
	return st
}

// advance applies one step of the transition table. Must be called with
// d.mu held.
func (d *Detector) advance(aboveThreshold bool, now time.Time) event {
	switch d.state {
	case Silent:
		if aboveThreshold {
			d.speechStart = now
			d.state = PendingSpeech
		}

	case PendingSpeech:
		if !aboveThreshold {
			d.speechStart = time.Time{}
			d.state = Silent
			break
		}
		if now.Sub(d.speechStart) >= d.cfg.MinSpeechDuration {
			d.state = Active
			d.lastSpeech = now
			return evStarted
		}

	case Active:
		if aboveThreshold {
			d.lastSpeech = now
		} else {
			d.state = PendingSilence
		}

	case PendingSilence:
		if aboveThreshold {
			// Re-arm; no duplicate SpeechStarted.
			d.lastSpeech = now
			d.state = Active
			break
		}
		if now.Sub(d.lastSpeech) >= d.cfg.SilenceTimeout {
			d.state = Silent
			d.speechStart = time.Time{}
			return evEnded
		}
	}
	return evNone
}

// SetEnabled toggles detection. Disabling while speech is active or pending
// silence force-emits SpeechEnded immediately — no timeout wait — so that
// downstream consumers never leak a ducked state. Re-enabling resets all
// timers and the state to Silent; missed events are not replayed.
func (d *Detector) SetEnabled(on bool, now time.Time) {
	d.mu.Lock()
	if d.enabled == on {
		d.mu.Unlock()
		return
	}
	d.enabled = on

	ev := evNone
	if !on && (d.state == Active || d.state == PendingSilence) {
		ev = evEnded
	}
	d.state = Silent
	d.speechStart = time.Time{}
	d.lastSpeech = time.Time{}
	listeners := d.listeners
	d.mu.Unlock()

	slog.Debug("vad: detection toggled", "enabled", on)
	d.emit(listeners, ev, now)
}

// emit delivers ev to every listener, isolating panics per listener so one
// misbehaving consumer cannot stall the frame path.
func (d *Detector) emit(listeners []Listener, ev event, now time.Time) {
	if ev == evNone {
		return
	}
	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("vad: listener panicked", "event", ev, "panic", r)
				}
			}()
			switch ev {
			case evStarted:
				l.SpeechStarted(now)
			case evEnded:
				l.SpeechEnded(now)
			}
		}()
	}
}

// State returns the current speech state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Enabled reports whether detection is running.
func (d *Detector) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Levels returns the smoothed energy and decision threshold as of the most
// recently processed frame. Useful for diagnostics and metrics; both are 0
// before the first frame.
func (d *Detector) Levels() (smoothed, threshold float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSmoothed, d.lastThreshold
}

// SetBaseThreshold updates the adaptive threshold floor at runtime, clamped
// to [MinBaseThreshold, MaxBaseThreshold]. Takes effect on the next frame.
func (d *Detector) SetBaseThreshold(v float64) {
	v = ClampBaseThreshold(v)
	d.mu.Lock()
	d.cfg.BaseThreshold = v
	d.tracker.SetBaseThreshold(v)
	d.mu.Unlock()
}

// SetSensitivity updates the rolling-average multiplier at runtime, clamped
// to [1.0, 5.0]. Takes effect on the next frame.
func (d *Detector) SetSensitivity(v float64) {
	v = clampFloat(v, minSensitivity, maxSensitivity)
	d.mu.Lock()
	d.cfg.Sensitivity = v
	d.tracker.SetSensitivity(v)
	d.mu.Unlock()
}

// SetMinSpeechDuration updates the speech-start hysteresis at runtime.
// Non-positive values are ignored with a warning.
func (d *Detector) SetMinSpeechDuration(v time.Duration) {
	if v <= 0 {
		slog.Warn("vad: ignoring non-positive min_speech_duration", "value", v)
		return
	}
	d.mu.Lock()
	d.cfg.MinSpeechDuration = v
	d.mu.Unlock()
}

// SetSilenceTimeout updates the speech-end hysteresis at runtime.
// Non-positive values are ignored with a warning.
func (d *Detector) SetSilenceTimeout(v time.Duration) {
	if v <= 0 {
		slog.Warn("vad: ignoring non-positive silence_timeout", "value", v)
		return
	}
	d.mu.Lock()
	d.cfg.SilenceTimeout = v
	d.mu.Unlock()
}
