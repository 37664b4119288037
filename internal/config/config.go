// Package config provides the configuration schema, loader, and
// source/sink factory registry for the duckwave engine.
package config

import "time"

// LogLevel controls log verbosity for the duckwave server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SourceKind selects where capture frames come from.
type SourceKind string

const (
	// SourceWAV replays a WAV file as a paced capture stream.
	SourceWAV SourceKind = "wav"

	// SourceWebSocket receives PCM frames pushed by an external collaborator.
	SourceWebSocket SourceKind = "websocket"
)

// IsValid reports whether s is a recognised source kind.
func (s SourceKind) IsValid() bool {
	return s == SourceWAV || s == SourceWebSocket
}

// SinkKind selects what kind of background audio the engine plays.
type SinkKind string

const (
	// SinkTrack plays a decoded audio file (WAV, MP3, or Ogg Vorbis).
	SinkTrack SinkKind = "track"

	// SinkTone plays a generated sine tone, for development and demos.
	SinkTone SinkKind = "tone"
)

// IsValid reports whether s is a recognised sink kind.
func (s SinkKind) IsValid() bool {
	return s == SinkTrack || s == SinkTone
}

// Config is the root configuration structure for duckwave.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	VAD      VADConfig      `yaml:"vad"`
	Ducking  DuckingConfig  `yaml:"ducking"`
	Playback PlaybackConfig `yaml:"playback"`
}

// ServerConfig holds network and logging settings for the duckwave server.
type ServerConfig struct {
	// ListenAddr is the TCP address the metrics/health server listens on
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig selects and tunes the capture frame source.
type CaptureConfig struct {
	// Source picks the frame supplier: "wav" or "websocket".
	Source SourceKind `yaml:"source"`

	// WAVPath is the file replayed when Source is "wav".
	WAVPath string `yaml:"wav_path"`

	// WebSocketURL is dialed when Source is "websocket".
	WebSocketURL string `yaml:"websocket_url"`

	// SampleRate is the PCM sample rate of websocket frames in Hz.
	SampleRate int `yaml:"sample_rate"`

	// FrameSizeMs is the capture frame period in milliseconds.
	FrameSizeMs int `yaml:"frame_size_ms"`
}

// VADConfig tunes the speech detector. Out-of-range values are clamped with
// a warning rather than rejected, so a bad config never disables detection.
type VADConfig struct {
	// Enabled toggles detection. When false the engine passes audio through
	// without ducking.
	Enabled bool `yaml:"enabled"`

	// BaseThreshold is the noise-floor energy below which frames are never
	// treated as speech. Clamped to [0.001, 0.1].
	BaseThreshold float64 `yaml:"base_threshold"`

	// SmoothingFactor weights the previous smoothed energy in the EMA.
	SmoothingFactor float64 `yaml:"smoothing_factor"`

	// Sensitivity scales the rolling average into the adaptive threshold.
	// Clamped to [1.0, 5.0].
	Sensitivity float64 `yaml:"sensitivity"`

	// HistorySize is how many smoothed energies the rolling average spans.
	HistorySize int `yaml:"history_size"`

	// MinSpeechDurationMs is how long energy must stay above threshold
	// before a speech episode begins.
	MinSpeechDurationMs int `yaml:"min_speech_duration_ms"`

	// SilenceTimeoutMs is how long energy must stay below threshold before
	// a speech episode ends.
	SilenceTimeoutMs int `yaml:"silence_timeout_ms"`
}

// MinSpeechDuration returns the debounce before speech starts.
func (c VADConfig) MinSpeechDuration() time.Duration {
	return time.Duration(c.MinSpeechDurationMs) * time.Millisecond
}

// SilenceTimeout returns the hangover before speech ends.
func (c VADConfig) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutMs) * time.Millisecond
}

// DuckingConfig tunes how background audio is attenuated during speech.
type DuckingConfig struct {
	// Factor is the gain multiplier applied while speech is active.
	// Clamped to [0.1, 1.0].
	Factor float64 `yaml:"factor"`

	// FadeDurationMs is how long each duck/restore gain ramp takes.
	FadeDurationMs int `yaml:"fade_duration_ms"`

	// RampSteps is the number of discrete gain steps per ramp.
	RampSteps int `yaml:"ramp_steps"`
}

// FadeDuration returns the ramp length.
func (c DuckingConfig) FadeDuration() time.Duration {
	return time.Duration(c.FadeDurationMs) * time.Millisecond
}

// PlaybackConfig selects and tunes the background audio sink.
type PlaybackConfig struct {
	// Sink picks the background audio: "track" or "tone".
	Sink SinkKind `yaml:"sink"`

	// TrackPath is the audio file played when Sink is "track".
	TrackPath string `yaml:"track_path"`

	// Loop restarts the track when it ends.
	Loop bool `yaml:"loop"`

	// ToneFrequencyHz is the sine frequency when Sink is "tone".
	ToneFrequencyHz float64 `yaml:"tone_frequency_hz"`
}

// Default returns a Config populated with the engine defaults. Loading
// decodes on top of this, so omitted fields keep their defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Capture: CaptureConfig{
			Source:      SourceWAV,
			SampleRate:  48000,
			FrameSizeMs: 256,
		},
		VAD: VADConfig{
			Enabled:             true,
			BaseThreshold:       0.01,
			SmoothingFactor:     0.8,
			Sensitivity:         1.5,
			HistorySize:         10,
			MinSpeechDurationMs: 300,
			SilenceTimeoutMs:    1000,
		},
		Ducking: DuckingConfig{
			Factor:         0.2,
			FadeDurationMs: 100,
			RampSteps:      20,
		},
		Playback: PlaybackConfig{
			Sink:            SinkTone,
			Loop:            true,
			ToneFrequencyHz: 440,
		},
	}
}
