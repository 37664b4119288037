package capture

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	gowav "github.com/go-audio/wav"

	"github.com/mkarlsen/duckwave/pkg/audio"
)

// Compile-time interface assertion.
var _ Source = (*WAVSource)(nil)

// WAVOption configures a [WAVSource] during construction.
type WAVOption func(*WAVSource)

// WithFrameSize sets the frame period in milliseconds. Values < 1 fall back
// to [DefaultFrameSizeMs].
func WithFrameSize(ms int) WAVOption {
	return func(s *WAVSource) {
		if ms >= 1 {
			s.frameMs = ms
		}
	}
}

// WithPacing controls whether frames are delivered in real time (one frame
// per frame period, the default) or as fast as the consumer drains them.
// Unpaced delivery is intended for tests and offline analysis.
func WithPacing(paced bool) WAVOption {
	return func(s *WAVSource) { s.paced = paced }
}

// WAVSource reads a mono-downmixed WAV file and emits it as a paced stream of
// capture frames, simulating a microphone callback. Useful for development
// and for replaying recorded sessions.
type WAVSource struct {
	samples    []float64
	sampleRate int
	frameMs    int
	paced      bool

	ch        chan audio.Frame
	closeOnce sync.Once
	done      chan struct{}
}

// OpenWAV decodes the WAV file at path and starts the delivery goroutine.
// The stream ends (channel closes) when the file is exhausted.
func OpenWAV(path string, opts ...WAVOption) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %q: %w", path, err)
	}
	defer f.Close()

	dec := gowav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("capture: decode %q: %w", path, err)
	}
	floats := audio.IntPCMToFloat(buf.Data, int(dec.BitDepth))
	mono := audio.DownmixInterleaved(floats, buf.Format.NumChannels)
	if len(mono) == 0 {
		return nil, fmt.Errorf("capture: %q contains no audio", path)
	}

	s := &WAVSource{
		samples:    mono,
		sampleRate: buf.Format.SampleRate,
		frameMs:    DefaultFrameSizeMs,
		paced:      true,
		ch:         make(chan audio.Frame, 4),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	go s.deliver()
	return s, nil
}

// deliver slices the decoded samples into frames and sends them, paced to the
// frame period when enabled.
func (s *WAVSource) deliver() {
	defer close(s.ch)

	frameSamples := s.sampleRate * s.frameMs / 1000
	if frameSamples < 1 {
		frameSamples = 1
	}

	var ticker *time.Ticker
	if s.paced {
		ticker = time.NewTicker(time.Duration(s.frameMs) * time.Millisecond)
		defer ticker.Stop()
	}

	for off := 0; off < len(s.samples); off += frameSamples {
		if s.paced {
			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}

		end := min(off+frameSamples, len(s.samples))
		frame := audio.Frame{
			Samples:    s.samples[off:end],
			SampleRate: s.sampleRate,
			Timestamp:  time.Duration(off) * time.Second / time.Duration(s.sampleRate),
		}
		select {
		case <-s.done:
			return
		case s.ch <- frame:
		}
	}
	slog.Debug("capture: wav source exhausted", "samples", len(s.samples))
}

// Frames returns the frame channel. It closes when the file is exhausted or
// the source is closed.
func (s *WAVSource) Frames() <-chan audio.Frame { return s.ch }

// Close stops delivery. Close is idempotent.
func (s *WAVSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
