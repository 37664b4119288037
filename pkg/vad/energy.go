package vad

import "math"

// RMS computes the root-mean-square magnitude of a sample block:
// sqrt(sum(s_i^2) / N). It is the loudness proxy driving detection.
//
// Pure and allocation-free — it runs once per capture callback on the hot
// path. Malformed input is clamped, never rejected: a zero-length block
// yields 0, NaN and Inf samples are treated as 0, and magnitudes above 1.0
// are clamped to 1.0.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}
