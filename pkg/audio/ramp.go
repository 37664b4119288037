package audio

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultRampSteps is the number of discrete gain steps a ramp is divided
// into when no explicit step count is configured.
const DefaultRampSteps = 20

// Ramper executes smooth gain transitions on a single [Sink] using repeated
// small SetGain steps on a fixed-step ticker. Concrete sinks embed one to
// implement [Sink.RampGain].
//
// At most one ramp is in flight per Ramper. Starting a new ramp supersedes
// the previous one: its remaining steps are abandoned and the new ramp begins
// from the sink's current gain, never from a stale target.
//
// All methods are safe for concurrent use.
type Ramper struct {
	mu     sync.Mutex
	steps  int
	cancel chan struct{} // closed to abandon the in-flight ramp, nil when idle
}

// NewRamper creates a Ramper that divides each ramp into steps increments.
// Values < 1 fall back to [DefaultRampSteps].
func NewRamper(steps int) *Ramper {
	if steps < 1 {
		steps = DefaultRampSteps
	}
	return &Ramper{steps: steps}
}

// Start begins a ramp on s from its current gain to target over dur,
// superseding any ramp already in flight. A non-positive duration applies
// target immediately.
func (r *Ramper) Start(s Sink, target float64, dur time.Duration) {
	target = ClampGain(target)

	r.mu.Lock()
	if r.cancel != nil {
		close(r.cancel)
		r.cancel = nil
	}

	if dur <= 0 {
		r.mu.Unlock()
		if err := s.SetGain(target); err != nil {
			slog.Warn("gain ramp: immediate set failed", "target", target, "err", err)
		}
		return
	}

	cancel := make(chan struct{})
	r.cancel = cancel
	steps := r.steps
	r.mu.Unlock()

	go r.run(s, target, dur, steps, cancel)
}

// Stop abandons the in-flight ramp, if any, leaving the sink at whatever
// partial gain it has reached.
func (r *Ramper) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		close(r.cancel)
		r.cancel = nil
	}
	r.mu.Unlock()
}

// run executes the stepped fade. The start gain is sampled at the first tick
// rather than inside Start, so a superseded ramp's final straggling step and
// any external SetGain landing before the fade begins fold into the
// trajectory instead of being overwritten. It exits early when cancel is
// closed or the sink rejects a gain change; a rejected step abandons the rest
// of the ramp since the sink is gone, not recovering.
func (r *Ramper) run(s Sink, target float64, dur time.Duration, steps int, cancel chan struct{}) {
	ticker := time.NewTicker(dur / time.Duration(steps))
	defer ticker.Stop()

	var start float64
	for i := 1; i <= steps; i++ {
		select {
		case <-cancel:
			return
		case <-ticker.C:
		}
		if i == 1 {
			start = s.Gain()
		}

		g := start + (target-start)*float64(i)/float64(steps)
		if i == steps {
			g = target // land exactly on the target, no float accumulation
		}
		if err := s.SetGain(g); err != nil {
			slog.Warn("gain ramp: step failed, abandoning ramp",
				"step", i, "steps", steps, "target", target, "err", err)
			return
		}
	}

	r.mu.Lock()
	if r.cancel == cancel {
		r.cancel = nil
	}
	r.mu.Unlock()
}
