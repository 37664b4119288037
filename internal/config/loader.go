package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Decoding starts from [Default], so omitted fields keep their defaults.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. Structural
// problems (unknown kinds, missing paths) are errors; out-of-range tunables
// are not checked here, as the detector and controller clamp them with a
// warning instead.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	// Capture
	if !cfg.Capture.Source.IsValid() {
		errs = append(errs, fmt.Errorf("capture.source %q is invalid; valid values: wav, websocket", cfg.Capture.Source))
	}
	if cfg.Capture.Source == SourceWAV && cfg.Capture.WAVPath == "" {
		errs = append(errs, errors.New("capture.wav_path is required when capture.source is wav"))
	}
	if cfg.Capture.Source == SourceWebSocket {
		if cfg.Capture.WebSocketURL == "" {
			errs = append(errs, errors.New("capture.websocket_url is required when capture.source is websocket"))
		}
		if cfg.Capture.SampleRate <= 0 {
			errs = append(errs, fmt.Errorf("capture.sample_rate %d must be positive when capture.source is websocket", cfg.Capture.SampleRate))
		}
	}
	if cfg.Capture.FrameSizeMs < 1 {
		errs = append(errs, fmt.Errorf("capture.frame_size_ms %d must be at least 1", cfg.Capture.FrameSizeMs))
	}

	// Playback
	if !cfg.Playback.Sink.IsValid() {
		errs = append(errs, fmt.Errorf("playback.sink %q is invalid; valid values: track, tone", cfg.Playback.Sink))
	}
	if cfg.Playback.Sink == SinkTrack && cfg.Playback.TrackPath == "" {
		errs = append(errs, errors.New("playback.track_path is required when playback.sink is track"))
	}
	if cfg.Playback.Sink == SinkTone && cfg.Playback.ToneFrequencyHz <= 0 {
		errs = append(errs, fmt.Errorf("playback.tone_frequency_hz %.1f must be positive", cfg.Playback.ToneFrequencyHz))
	}

	return errors.Join(errs...)
}
