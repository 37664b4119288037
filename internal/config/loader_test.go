package config

import (
	"strings"
	"testing"
)

const validYAML = `
server:
  listen_addr: ":9999"
  log_level: debug
capture:
  source: wav
  wav_path: testdata/session.wav
vad:
  base_threshold: 0.02
ducking:
  factor: 0.3
playback:
  sink: tone
  tone_frequency_hz: 220
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9999" || cfg.Server.LogLevel != LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Capture.WAVPath != "testdata/session.wav" {
		t.Errorf("wav_path = %q", cfg.Capture.WAVPath)
	}
	if cfg.VAD.BaseThreshold != 0.02 {
		t.Errorf("base_threshold = %v", cfg.VAD.BaseThreshold)
	}
	if cfg.Ducking.Factor != 0.3 {
		t.Errorf("ducking.factor = %v", cfg.Ducking.Factor)
	}
	if cfg.Playback.ToneFrequencyHz != 220 {
		t.Errorf("tone_frequency_hz = %v", cfg.Playback.ToneFrequencyHz)
	}
}

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
capture:
  source: wav
  wav_path: a.wav
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	def := Default()
	if cfg.VAD != def.VAD {
		t.Errorf("vad = %+v, want defaults %+v", cfg.VAD, def.VAD)
	}
	if cfg.Ducking != def.Ducking {
		t.Errorf("ducking = %+v, want defaults %+v", cfg.Ducking, def.Ducking)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen_addr = %q, want default :8080", cfg.Server.ListenAddr)
	}
	if !cfg.VAD.Enabled {
		t.Error("vad.enabled = false, want default true")
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader(`
capture:
  source: wav
  wav_path: a.wav
  microphone: built-in
`))
	if err == nil {
		t.Fatal("unknown field accepted, want decode error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) { c.Capture.WAVPath = "a.wav" },
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Capture.Source = "mic" },
			wantErr: "capture.source",
		},
		{
			name:    "wav without path",
			mutate:  func(c *Config) { c.Capture.WAVPath = "" },
			wantErr: "capture.wav_path",
		},
		{
			name: "websocket without url",
			mutate: func(c *Config) {
				c.Capture.Source = SourceWebSocket
				c.Capture.WebSocketURL = ""
			},
			wantErr: "capture.websocket_url",
		},
		{
			name: "websocket without sample rate",
			mutate: func(c *Config) {
				c.Capture.Source = SourceWebSocket
				c.Capture.WebSocketURL = "ws://x"
				c.Capture.SampleRate = 0
			},
			wantErr: "capture.sample_rate",
		},
		{
			name: "track without path",
			mutate: func(c *Config) {
				c.Capture.WAVPath = "a.wav"
				c.Playback.Sink = SinkTrack
			},
			wantErr: "playback.track_path",
		},
		{
			name: "non-positive tone frequency",
			mutate: func(c *Config) {
				c.Capture.WAVPath = "a.wav"
				c.Playback.ToneFrequencyHz = 0
			},
			wantErr: "playback.tone_frequency_hz",
		},
		{
			name: "invalid log level",
			mutate: func(c *Config) {
				c.Capture.WAVPath = "a.wav"
				c.Server.LogLevel = "loud"
			},
			wantErr: "server.log_level",
		},
		{
			name: "missing listen addr",
			mutate: func(c *Config) {
				c.Capture.WAVPath = "a.wav"
				c.Server.ListenAddr = ""
			},
			wantErr: "server.listen_addr",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate: %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateJoinsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Capture.Source = "mic"
	cfg.Playback.Sink = "speaker"
	cfg.Server.LogLevel = "loud"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate: nil error")
	}
	for _, want := range []string{"capture.source", "playback.sink", "server.log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does/not/exist.yaml"); err == nil {
		t.Fatal("Load(missing) = nil error")
	}
}
