package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/mkarlsen/duckwave/pkg/audio"
)

// Compile-time interface assertion.
var _ Source = (*WSSource)(nil)

// wsReadLimit bounds incoming message size. One message carries at most one
// frame; even a one-second 48 kHz frame of PCM16 is under 100 KiB.
const wsReadLimit = 1 << 20

// WSOption configures a [WSSource] during construction.
type WSOption func(*WSSource)

// WithWSBuffer sets the frame channel buffer size. Values < 1 keep the
// default of 8.
func WithWSBuffer(n int) WSOption {
	return func(s *WSSource) {
		if n >= 1 {
			s.buf = n
		}
	}
}

// WSSource receives capture frames pushed over a WebSocket by an external
// capture collaborator (e.g., a browser or a microphone bridge). Each binary
// message is one frame of little-endian 16-bit PCM, mono, at the negotiated
// sample rate. Text messages are ignored.
type WSSource struct {
	conn       *websocket.Conn
	sampleRate int
	buf        int

	ch        chan audio.Frame
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// DialWS connects to a capture collaborator at url and starts the read loop.
// sampleRate must match the PCM the collaborator sends.
func DialWS(ctx context.Context, url string, sampleRate int, opts ...WSOption) (*WSSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("capture: invalid sample rate %d", sampleRate)
	}

	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("capture: dial %q: %w", url, err)
	}
	conn.SetReadLimit(wsReadLimit)

	s := &WSSource{
		conn:       conn,
		sampleRate: sampleRate,
		buf:        8,
	}
	for _, o := range opts {
		o(s)
	}
	s.ch = make(chan audio.Frame, s.buf)

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.readLoop(loopCtx)
	return s, nil
}

// readLoop converts incoming binary messages to frames until the connection
// drops or the source is closed. A frame that would block is dropped rather
// than stalling the socket — the capture path must keep up with real time.
func (s *WSSource) readLoop(ctx context.Context) {
	defer close(s.ch)

	var elapsed time.Duration
	for {
		typ, data, err := s.conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Warn("capture: websocket read ended", "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary || len(data) < 2 {
			continue
		}

		frame := audio.Frame{
			Samples:    audio.BytesToFloat(data),
			SampleRate: s.sampleRate,
			Timestamp:  elapsed,
		}
		elapsed += frame.Duration()

		select {
		case s.ch <- frame:
		default:
			slog.Warn("capture: consumer lagging, dropping frame",
				"samples", len(frame.Samples))
		}
	}
}

// Frames returns the frame channel. It closes when the connection drops or
// the source is closed.
func (s *WSSource) Frames() <-chan audio.Frame { return s.ch }

// Close tears down the connection. Close is idempotent.
func (s *WSSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.conn.Close(websocket.StatusNormalClosure, "capture stopped")
	})
	return err
}
