package audio

import "time"

// Frame represents a single block of mono audio samples flowing through the
// pipeline. Frames are the atomic unit of audio transport — delivered by a
// capture source once per callback period, analysed by the VAD detector, and
// produced by playback sinks.
type Frame struct {
	// Samples holds signed normalized samples in the range [-1.0, 1.0].
	Samples []float64

	// SampleRate in Hz (e.g., 48000 for playback, 16000 for capture).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the wall-clock time this frame covers. Returns zero when
// the sample rate is unset.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}
