package vad

// Tracker maintains the smoothed energy estimate and the adaptive decision
// threshold. Exponential smoothing suppresses sample-to-sample jitter; the
// rolling-average floor lets the detector adapt to the ambient noise level
// while the base threshold keeps the floor from collapsing to zero in
// silence, which would make any noise register as speech.
//
// A Tracker is owned by a single [Detector] and is not safe for concurrent
// use on its own.
type Tracker struct {
	smoothing   float64 // EMA factor in (0, 1); weight of the previous estimate
	base        float64 // lower bound for the decision threshold
	sensitivity float64 // multiplier applied to the rolling average

	smoothed float64

	// history is a fixed-capacity ring of recent smoothed values. sum is
	// maintained incrementally so the rolling average is O(1) per frame.
	history []float64
	pos     int
	count   int
	sum     float64
}

// NewTracker creates a Tracker with the given EMA factor, base threshold,
// sensitivity multiplier, and history capacity. Values are assumed to be
// already validated/clamped by [Config.normalize].
func NewTracker(smoothing, base, sensitivity float64, historySize int) *Tracker {
	return &Tracker{
		smoothing:   smoothing,
		base:        base,
		sensitivity: sensitivity,
		history:     make([]float64, historySize),
	}
}

// Update folds one energy sample into the estimate and returns the new
// smoothed energy together with the decision threshold for this frame:
// max(base, mean(history) * sensitivity).
func (t *Tracker) Update(energy float64) (smoothed, threshold float64) {
	t.smoothed = t.smoothing*t.smoothed + (1-t.smoothing)*energy

	if t.count < len(t.history) {
		t.count++
	} else {
		t.sum -= t.history[t.pos]
	}
	t.history[t.pos] = t.smoothed
	t.sum += t.smoothed
	t.pos = (t.pos + 1) % len(t.history)

	avg := t.sum / float64(t.count)
	threshold = avg * t.sensitivity
	if threshold < t.base {
		threshold = t.base
	}
	return t.smoothed, threshold
}

// SetBaseThreshold replaces the threshold floor. Takes effect on the next
// frame.
func (t *Tracker) SetBaseThreshold(v float64) { t.base = v }

// SetSensitivity replaces the rolling-average multiplier. Takes effect on the
// next frame.
func (t *Tracker) SetSensitivity(v float64) { t.sensitivity = v }

// Reset clears the smoothed estimate and the history, as when a new capture
// session starts.
func (t *Tracker) Reset() {
	t.smoothed = 0
	t.pos = 0
	t.count = 0
	t.sum = 0
	clear(t.history)
}
