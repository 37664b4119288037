package vad

import (
	"log/slog"
	"time"
)

// State enumerates the speech state machine's states. Exactly one State is
// held per detector; it is mutated only by [Detector.ProcessFrame] and
// [Detector.SetEnabled].
type State int

const (
	// Silent is the initial state: no speech, no pending decision.
	Silent State = iota

	// PendingSpeech means energy is above threshold but has not yet been
	// sustained for the minimum speech duration.
	PendingSpeech

	// Active means speech is in progress; SpeechStarted has been emitted.
	Active

	// PendingSilence means energy dropped below threshold during speech but
	// the silence timeout has not yet elapsed.
	PendingSilence
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case Silent:
		return "SILENT"
	case PendingSpeech:
		return "PENDING_SPEECH"
	case Active:
		return "ACTIVE"
	case PendingSilence:
		return "PENDING_SILENCE"
	default:
		return "UNKNOWN"
	}
}

// Listener receives the detector's two externally observable events.
// SpeechStarted fires exactly once on entry to Active; SpeechEnded fires
// exactly once on return to Silent from PendingSilence (or when the detector
// is disabled mid-speech).
//
// Listeners are invoked synchronously on the frame-processing goroutine, in
// registration order, so event ordering equals frame ordering. They must not
// block.
type Listener interface {
	SpeechStarted(now time.Time)
	SpeechEnded(now time.Time)
}

// Default configuration values. See [Config].
const (
	DefaultSmoothingFactor   = 0.8
	DefaultBaseThreshold     = 0.01
	DefaultSensitivity       = 1.5
	DefaultHistorySize       = 10
	DefaultMinSpeechDuration = 300 * time.Millisecond
	DefaultSilenceTimeout    = time.Second
)

// Clamp bounds for configurable values. Out-of-range values are clamped to
// the nearest bound with a logged warning, never rejected — detection keeps
// running with the clamped value.
const (
	MinBaseThreshold = 0.001
	MaxBaseThreshold = 0.1
	minSmoothing     = 0.01
	maxSmoothing     = 0.99
	minSensitivity   = 1.0
	maxSensitivity   = 5.0
)

// Config holds the parameters for a detector. The zero value of any field
// selects its default, so Config{} is a working configuration.
type Config struct {
	// SmoothingFactor is the exponential-moving-average factor in (0, 1)
	// applied to per-frame energy; higher values smooth harder. Default 0.8.
	SmoothingFactor float64

	// BaseThreshold is the lower bound of the adaptive decision threshold,
	// clamped to [0.001, 0.1]. Default 0.01.
	BaseThreshold float64

	// Sensitivity multiplies the rolling-average energy to derive the
	// adaptive threshold, clamped to [1.0, 5.0]. Default 1.5.
	Sensitivity float64

	// HistorySize is the capacity of the smoothed-energy history used for
	// the rolling average. Default 10, minimum 1.
	HistorySize int

	// MinSpeechDuration is how long energy must stay above threshold before
	// SpeechStarted fires. Default 300ms.
	MinSpeechDuration time.Duration

	// SilenceTimeout is how long energy must stay below threshold before
	// SpeechEnded fires. Default 1s.
	SilenceTimeout time.Duration
}

// normalize returns a copy of c with defaults applied and out-of-range values
// clamped. Each clamp is surfaced as a warning but never an error.
func (c Config) normalize() Config {
	if c.SmoothingFactor == 0 {
		c.SmoothingFactor = DefaultSmoothingFactor
	}
	if c.SmoothingFactor < minSmoothing || c.SmoothingFactor > maxSmoothing {
		clamped := clampFloat(c.SmoothingFactor, minSmoothing, maxSmoothing)
		slog.Warn("vad: smoothing_factor out of range, clamping",
			"value", c.SmoothingFactor, "clamped", clamped)
		c.SmoothingFactor = clamped
	}

	if c.BaseThreshold == 0 {
		c.BaseThreshold = DefaultBaseThreshold
	}
	c.BaseThreshold = ClampBaseThreshold(c.BaseThreshold)

	if c.Sensitivity == 0 {
		c.Sensitivity = DefaultSensitivity
	}
	if c.Sensitivity < minSensitivity || c.Sensitivity > maxSensitivity {
		clamped := clampFloat(c.Sensitivity, minSensitivity, maxSensitivity)
		slog.Warn("vad: sensitivity out of range, clamping",
			"value", c.Sensitivity, "clamped", clamped)
		c.Sensitivity = clamped
	}

	if c.HistorySize == 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.HistorySize < 1 {
		slog.Warn("vad: history_size must be at least 1, clamping", "value", c.HistorySize)
		c.HistorySize = 1
	}

	if c.MinSpeechDuration <= 0 {
		if c.MinSpeechDuration < 0 {
			slog.Warn("vad: min_speech_duration must be positive, using default",
				"value", c.MinSpeechDuration)
		}
		c.MinSpeechDuration = DefaultMinSpeechDuration
	}
	if c.SilenceTimeout <= 0 {
		if c.SilenceTimeout < 0 {
			slog.Warn("vad: silence_timeout must be positive, using default",
				"value", c.SilenceTimeout)
		}
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	return c
}

// ClampBaseThreshold bounds v to the valid base-threshold range, logging a
// warning when clamping occurs. Exposed because the runtime configuration
// surface applies the same rule.
func ClampBaseThreshold(v float64) float64 {
	if v < MinBaseThreshold || v > MaxBaseThreshold {
		clamped := clampFloat(v, MinBaseThreshold, MaxBaseThreshold)
		slog.Warn("vad: base_threshold out of range, clamping", "value", v, "clamped", clamped)
		return clamped
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
