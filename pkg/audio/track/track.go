// Package track provides a streamed-track [audio.Sink] backed by a decoded
// audio file. WAV, MP3, and Ogg Vorbis are supported; the decoded samples are
// downmixed to normalized mono floats so the rest of the pipeline never deals
// with codec specifics.
package track

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gowav "github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/mkarlsen/duckwave/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Sink        = (*Sink)(nil)
	_ audio.FrameSource = (*Sink)(nil)
)

// Option configures a [Sink] during construction.
type Option func(*Sink)

// WithLoop makes playback restart from the beginning when the track ends.
func WithLoop(loop bool) Option {
	return func(s *Sink) { s.loop = loop }
}

// WithRampSteps sets the number of discrete steps a gain ramp is divided into.
func WithRampSteps(n int) Option {
	return func(s *Sink) {
		s.ramper = audio.NewRamper(n)
	}
}

// Sink plays a fully decoded track. All exported methods are safe for
// concurrent use.
type Sink struct {
	samples    []float64 // decoded mono, normalized
	sampleRate int
	loop       bool
	ramper     *audio.Ramper

	mu     sync.Mutex
	gain   float64
	pos    int
	closed bool
}

// Open decodes the audio file at path into a ready-to-play Sink with gain
// 1.0. The decoder is selected by file extension: .wav, .mp3, .ogg/.oga.
func Open(path string, opts ...Option) (*Sink, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("track: open %q: %w", path, err)
	}
	defer f.Close()

	var samples []float64
	var rate int
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".wav":
		samples, rate, err = decodeWAV(f)
	case ".mp3":
		samples, rate, err = decodeMP3(f)
	case ".ogg", ".oga":
		samples, rate, err = decodeVorbis(f)
	default:
		return nil, fmt.Errorf("track: unsupported file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("track: decode %q: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("track: %q contains no audio", path)
	}

	s := &Sink{
		samples:    samples,
		sampleRate: rate,
		ramper:     audio.NewRamper(audio.DefaultRampSteps),
		gain:       1.0,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// decodeWAV decodes PCM WAV via go-audio and downmixes to mono.
func decodeWAV(r io.ReadSeeker) ([]float64, int, error) {
	dec := gowav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("wav: %w", err)
	}
	floats := audio.IntPCMToFloat(buf.Data, int(dec.BitDepth))
	mono := audio.DownmixInterleaved(floats, buf.Format.NumChannels)
	return mono, buf.Format.SampleRate, nil
}

// decodeMP3 decodes via go-mp3, which always yields 16-bit stereo PCM.
func decodeMP3(r io.Reader) ([]float64, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3: read: %w", err)
	}
	stereo := audio.BytesToFloat(raw)
	mono := audio.DownmixInterleaved(stereo, 2)
	return mono, dec.SampleRate(), nil
}

// decodeVorbis decodes the whole Ogg Vorbis stream and downmixes to mono.
func decodeVorbis(r io.Reader) ([]float64, int, error) {
	data, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("vorbis: %w", err)
	}
	floats := make([]float64, len(data))
	for i, v := range data {
		floats[i] = float64(v)
	}
	mono := audio.DownmixInterleaved(floats, format.Channels)
	return mono, format.SampleRate, nil
}

// SampleRate returns the decoded track's sample rate in Hz.
func (s *Sink) SampleRate() int { return s.sampleRate }

// Gain returns the current gain.
func (s *Sink) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// SetGain applies g immediately, clamped to [0, 1]. Returns
// [audio.ErrSinkClosed] after Close.
func (s *Sink) SetGain(g float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSinkClosed
	}
	s.gain = audio.ClampGain(g)
	return nil
}

// RampGain fades from the current gain to target over dur, superseding any
// ramp in flight.
func (s *Sink) RampGain(target float64, dur time.Duration) {
	s.ramper.Start(s, target, dur)
}

// NextFrame returns up to n samples of the track with the current gain
// applied. When looping is off, the final frame may be short; ok is false
// once the track is exhausted or the sink is closed.
func (s *Sink) NextFrame(n int) (audio.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || n <= 0 {
		return audio.Frame{}, false
	}
	if s.pos >= len(s.samples) {
		if !s.loop {
			return audio.Frame{}, false
		}
		s.pos = 0
	}

	out := make([]float64, 0, n)
	ts := time.Duration(s.pos) * time.Second / time.Duration(s.sampleRate)
	for len(out) < n {
		remaining := len(s.samples) - s.pos
		if remaining == 0 {
			if !s.loop {
				break
			}
			s.pos = 0
			remaining = len(s.samples)
		}
		take := min(n-len(out), remaining)
		for _, v := range s.samples[s.pos : s.pos+take] {
			out = append(out, v*s.gain)
		}
		s.pos += take
	}
	return audio.Frame{Samples: out, SampleRate: s.sampleRate, Timestamp: ts}, true
}

// Close releases the sink and abandons any in-flight ramp. Close is
// idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.ramper.Stop()
	return nil
}
