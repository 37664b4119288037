package vad

import (
	"math"
	"testing"
)

func TestRMS(t *testing.T) {
	tests := []struct {
		name    string
		samples []float64
		want    float64
	}{
		{name: "nil frame", samples: nil, want: 0},
		{name: "empty frame", samples: []float64{}, want: 0},
		{name: "all zeros", samples: make([]float64, 480), want: 0},
		{name: "constant half scale", samples: []float64{0.5, 0.5, 0.5, 0.5}, want: 0.5},
		{name: "full scale square wave", samples: []float64{1, -1, 1, -1}, want: 1},
		{name: "single sample", samples: []float64{-0.25}, want: 0.25},
		{name: "mixed", samples: []float64{0.6, -0.8}, want: math.Sqrt((0.36 + 0.64) / 2)},
		{name: "nan treated as zero", samples: []float64{math.NaN(), math.NaN()}, want: 0},
		{name: "inf treated as zero", samples: []float64{math.Inf(1), math.Inf(-1)}, want: 0},
		{name: "out of range clamped", samples: []float64{3, -3}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RMS(tt.samples)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("RMS() = %v, want %v", got, tt.want)
			}
			if got < 0 {
				t.Errorf("RMS() = %v, must be non-negative", got)
			}
		})
	}
}

func TestRMSNeverPanicsOnHostileInput(t *testing.T) {
	hostile := []float64{math.NaN(), math.Inf(1), -math.MaxFloat64, 0, 1e300}
	if got := RMS(hostile); math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("RMS() = %v, want finite", got)
	}
}
