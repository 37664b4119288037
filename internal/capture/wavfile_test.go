package capture_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"

	"github.com/mkarlsen/duckwave/internal/capture"
	"github.com/mkarlsen/duckwave/pkg/audio"
)

// writeWAV encodes samples as a 16-bit PCM WAV fixture and returns its path.
func writeWAV(t *testing.T, rate, channels int, samples []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := gowav.NewEncoder(f, rate, 16, channels, 1)
	ints := make([]int, len(samples))
	for i, s := range audio.FloatToInt16(samples) {
		ints[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// collect drains every frame from src, failing the test if the channel does
// not close within two seconds.
func collect(t *testing.T, src capture.Source) []audio.Frame {
	t.Helper()
	var frames []audio.Frame
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f, ok := <-src.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatalf("source never closed; got %d frames so far", len(frames))
		}
	}
}

func TestOpenWAVFramesAndTimestamps(t *testing.T) {
	// 1050 samples at 1 kHz with 100 ms frames: ten full frames of 100
	// samples plus a short final frame of 50.
	samples := make([]float64, 1050)
	for i := range samples {
		samples[i] = 0.25
	}
	path := writeWAV(t, 1000, 1, samples)

	src, err := capture.OpenWAV(path, capture.WithFrameSize(100), capture.WithPacing(false))
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	defer src.Close()

	frames := collect(t, src)
	if len(frames) != 11 {
		t.Fatalf("got %d frames, want 11", len(frames))
	}
	for i, f := range frames[:10] {
		if len(f.Samples) != 100 {
			t.Fatalf("frame %d has %d samples, want 100", i, len(f.Samples))
		}
		if f.SampleRate != 1000 {
			t.Fatalf("frame %d sample rate = %d, want 1000", i, f.SampleRate)
		}
		if want := time.Duration(i) * 100 * time.Millisecond; f.Timestamp != want {
			t.Fatalf("frame %d timestamp = %v, want %v", i, f.Timestamp, want)
		}
	}
	if last := frames[10]; len(last.Samples) != 50 {
		t.Fatalf("final frame has %d samples, want short 50", len(last.Samples))
	}
}

func TestOpenWAVDownmixesStereo(t *testing.T) {
	// Left 0.5, right -0.5 averages to silence.
	samples := make([]float64, 400)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 0.5
		samples[i+1] = -0.5
	}
	path := writeWAV(t, 1000, 2, samples)

	src, err := capture.OpenWAV(path, capture.WithFrameSize(100), capture.WithPacing(false))
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	defer src.Close()

	frames := collect(t, src)
	total := 0
	for _, f := range frames {
		total += len(f.Samples)
		for _, s := range f.Samples {
			if s > 1.0/32768 || s < -1.0/32768 {
				t.Fatalf("downmixed sample = %v, want ~0", s)
			}
		}
	}
	if total != 200 {
		t.Fatalf("got %d mono samples, want 200", total)
	}
}

func TestOpenWAVCloseStopsDelivery(t *testing.T) {
	samples := make([]float64, 10_000)
	path := writeWAV(t, 1000, 1, samples)

	// Paced at 100 ms per frame this file takes ten seconds to play out;
	// Close must end the stream long before that.
	src, err := capture.OpenWAV(path, capture.WithFrameSize(100))
	if err != nil {
		t.Fatalf("OpenWAV: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-src.Frames():
		if ok {
			// A frame may already be buffered; the channel still has
			// to close right after.
			for range src.Frames() {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame channel never closed after Close")
	}
}

func TestOpenWAVErrors(t *testing.T) {
	if _, err := capture.OpenWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("OpenWAV(missing) = nil error")
	}

	empty := writeWAV(t, 1000, 1, nil)
	if _, err := capture.OpenWAV(empty); err == nil {
		t.Fatal("OpenWAV(empty) = nil error")
	}
}

func TestChanSource(t *testing.T) {
	src := capture.NewChanSource(2)
	want := audio.Frame{Samples: []float64{0.1, 0.2}, SampleRate: 48000}
	src.Push(want)
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, ok := <-src.Frames()
	if !ok {
		t.Fatal("channel closed before delivering the pushed frame")
	}
	if got.SampleRate != want.SampleRate || len(got.Samples) != 2 {
		t.Fatalf("got frame %+v, want %+v", got, want)
	}
	if _, ok := <-src.Frames(); ok {
		t.Fatal("channel still open after Close")
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
