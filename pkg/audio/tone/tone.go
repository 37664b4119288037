// Package tone provides a synthesized sine-tone [audio.Sink], used as the
// fallback sound source when no decoded track is available. It produces the
// same fade behavior as the track sink so the ducking controller never needs
// to know which variant it holds.
package tone

import (
	"math"
	"sync"
	"time"

	"github.com/mkarlsen/duckwave/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Sink        = (*Sink)(nil)
	_ audio.FrameSource = (*Sink)(nil)
)

const (
	// DefaultFrequency is the oscillator pitch used when none is configured.
	DefaultFrequency = 440.0

	// DefaultSampleRate is the render rate used when none is configured.
	DefaultSampleRate = 48000

	// defaultAmplitude keeps the raw oscillator well below full scale so the
	// tone is unobtrusive even at gain 1.0.
	defaultAmplitude = 0.3
)

// Option configures a [Sink] during construction.
type Option func(*Sink)

// WithSampleRate sets the render sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(s *Sink) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

// WithRampSteps sets the number of discrete steps a gain ramp is divided into.
func WithRampSteps(n int) Option {
	return func(s *Sink) {
		s.ramper = audio.NewRamper(n)
	}
}

// Sink is a gain-controllable sine oscillator. All exported methods are safe
// for concurrent use.
type Sink struct {
	sampleRate int
	freq       float64
	ramper     *audio.Ramper

	mu       sync.Mutex
	gain     float64
	phase    float64
	rendered int // total samples rendered, for frame timestamps
	closed   bool
}

// New creates a tone sink at the given oscillator frequency in Hz with gain
// 1.0. Non-positive frequencies fall back to [DefaultFrequency].
func New(freq float64, opts ...Option) *Sink {
	if freq <= 0 {
		freq = DefaultFrequency
	}
	s := &Sink{
		sampleRate: DefaultSampleRate,
		freq:       freq,
		ramper:     audio.NewRamper(audio.DefaultRampSteps),
		gain:       1.0,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

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

// NextFrame renders up to n samples of the oscillator with the current gain
// applied. The phase is continuous across frames so gain ramps never click.
// ok is false after Close.
func (s *Sink) NextFrame(n int) (audio.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || n <= 0 {
		return audio.Frame{}, false
	}

	step := 2 * math.Pi * s.freq / float64(s.sampleRate)
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(s.phase) * defaultAmplitude * s.gain
		s.phase += step
	}
	// Keep the phase bounded to avoid precision loss on long sessions.
	s.phase = math.Mod(s.phase, 2*math.Pi)

	ts := time.Duration(s.rendered) * time.Second / time.Duration(s.sampleRate)
	s.rendered += n
	return audio.Frame{Samples: samples, SampleRate: s.sampleRate, Timestamp: ts}, true
}

// Close stops the oscillator and abandons any in-flight ramp. Close is
// idempotent.
func (s *Sink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.ramper.Stop()
	return nil
}
