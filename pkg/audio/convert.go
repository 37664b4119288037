package audio

import "math"

// Int16ToFloat converts little-endian int16 PCM samples to normalized float64
// samples in [-1.0, 1.0].
func Int16ToFloat(pcm []int16) []float64 {
	out := make([]float64, len(pcm))
	for i, s := range pcm {
		out[i] = float64(s) / 32768.0
	}
	return out
}

// FloatToInt16 converts normalized float64 samples to int16 PCM, clamping to
// the int16 range. NaN samples become 0.
func FloatToInt16(samples []float64) []int16 {
	out := make([]int16, len(samples))
	for i, s := range samples {
		if math.IsNaN(s) {
			continue
		}
		v := s * 32767.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i] = int16(v)
	}
	return out
}

// BytesToFloat converts little-endian 16-bit PCM bytes to normalized float64
// samples. A trailing odd byte is dropped.
func BytesToFloat(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, n)
	for i := range n {
		v := int16(uint16(pcm[2*i]) | uint16(pcm[2*i+1])<<8)
		out[i] = float64(v) / 32768.0
	}
	return out
}

// DownmixInterleaved averages interleaved multi-channel samples into mono.
// For channels <= 1 the input is returned unchanged. Trailing samples that do
// not fill a whole channel group are dropped.
func DownmixInterleaved(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float64(channels)
	}
	return out
}

// IntPCMToFloat converts integer PCM samples of the given bit depth to
// normalized float64 samples. Unsupported bit depths fall back to 16.
func IntPCMToFloat(data []int, bitDepth int) []float64 {
	var scale float64
	switch bitDepth {
	case 8:
		scale = 1 << 7
	case 16:
		scale = 1 << 15
	case 24:
		scale = 1 << 23
	case 32:
		scale = 1 << 31
	default:
		scale = 1 << 15
	}
	out := make([]float64, len(data))
	for i, s := range data {
		out[i] = float64(s) / scale
	}
	return out
}
