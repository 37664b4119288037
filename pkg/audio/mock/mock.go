// Package mock provides test doubles for the audio package interfaces.
package mock

import (
	"sync"
	"time"

	"github.com/mkarlsen/duckwave/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Sink = (*Sink)(nil)

// GainChange records one SetGain call on a [Sink].
type GainChange struct {
	Gain float64
	At   time.Time
}

// Sink is a controllable audio.Sink that records every gain change. Ramps
// are executed for real through an [audio.Ramper] so ramp timing and
// supersession behave exactly as on production sinks.
//
// Safe for concurrent use.
type Sink struct {
	ramper *audio.Ramper

	mu      sync.Mutex
	gain    float64
	history []GainChange
	failErr error // when non-nil, SetGain returns this error
}

// NewSink creates a mock sink with the given starting gain and ramp steps.
func NewSink(gain float64, rampSteps int) *Sink {
	return &Sink{
		ramper: audio.NewRamper(rampSteps),
		gain:   audio.ClampGain(gain),
	}
}

// Gain returns the current gain.
func (s *Sink) Gain() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gain
}

// SetGain applies g and records the change, or returns the configured failure.
func (s *Sink) SetGain(g float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.gain = audio.ClampGain(g)
	s.history = append(s.history, GainChange{Gain: s.gain, At: time.Now()})
	return nil
}

// RampGain fades to target over dur using the real ramp runner.
func (s *Sink) RampGain(target float64, dur time.Duration) {
	s.ramper.Start(s, target, dur)
}

// FailWith makes every subsequent SetGain call return err. Pass nil to heal.
func (s *Sink) FailWith(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// History returns a copy of all recorded gain changes.
func (s *Sink) History() []GainChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]GainChange, len(s.history))
	copy(out, s.history)
	return out
}

// Changes returns the number of recorded gain changes.
func (s *Sink) Changes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}
