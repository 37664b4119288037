// Package capture provides frame sources for the VAD pipeline.
//
// A [Source] supplies a continuous stream of [audio.Frame] values the way an
// audio-capture callback would: one frame per callback period, mono,
// normalized floats. The engine makes no assumption about how frames are
// obtained — implementations here read from a WAV file (paced to real time)
// or from a WebSocket pushed by an external capture collaborator; tests use
// [ChanSource].
package capture

import (
	"sync"

	"github.com/mkarlsen/duckwave/pkg/audio"
)

// DefaultFrameSizeMs is the frame period used when none is configured. It
// mirrors the capture-callback buffering of the reference pipeline.
const DefaultFrameSizeMs = 256

// Source is a supplier of capture frames. The Frames channel is closed when
// the source is exhausted or closed; Close is idempotent.
type Source interface {
	Frames() <-chan audio.Frame
	Close() error
}

// ChanSource is a Source fed manually, for tests and in-process producers.
type ChanSource struct {
	ch        chan audio.Frame
	closeOnce sync.Once
}

// NewChanSource creates a ChanSource with the given channel buffer size.
func NewChanSource(buf int) *ChanSource {
	return &ChanSource{ch: make(chan audio.Frame, buf)}
}

// Push delivers one frame to the consumer. Push must not be called after
// Close.
func (s *ChanSource) Push(f audio.Frame) { s.ch <- f }

// Frames returns the frame channel.
func (s *ChanSource) Frames() <-chan audio.Frame { return s.ch }

// Close closes the frame channel. Close is idempotent.
func (s *ChanSource) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}
