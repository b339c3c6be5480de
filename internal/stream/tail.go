package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/tickstream/internal/model"
)

// TailFrame is one tick received from a live tail.
type TailFrame struct {
	Tick model.Tick
	Raw  []byte        // payload exactly as relayed from the bus
	Lag  time.Duration // receive time minus the tick's observation time
}

// Tail consumes the Read API's live tail for one instrument, or for all of
// them when the URL carries no ticker.
type Tail struct {
	cfg    TailConfig
	conn   *websocket.Conn
	logger *slog.Logger

	frames    chan TailFrame
	done      chan struct{}
	closeOnce sync.Once
	closing   atomic.Bool
	malformed atomic.Int64

	err error // written before frames is closed
}

// DialTail opens the tail at cfg.URL and starts reading.
func DialTail(ctx context.Context, cfg TailConfig, logger *slog.Logger) (*Tail, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial tail: %w", err)
	}

	t := &Tail{
		cfg:    cfg,
		conn:   conn,
		logger: logger.With("url", cfg.URL),
		frames: make(chan TailFrame, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	// The server pings on an interval; each ping pushes the read deadline out.
	conn.SetPingHandler(func(data string) error {
		t.extendDeadline()
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(cfg.WriteTimeout))
	})

	go t.read()

	t.logger.Debug("tail connected")
	return t, nil
}

// Frames is closed when the tail ends. Err then reports why.
func (t *Tail) Frames() <-chan TailFrame {
	return t.frames
}

// Err returns nil if the tail was closed locally, and the reason otherwise.
// Only meaningful once Frames is closed.
func (t *Tail) Err() error {
	return t.err
}

// Malformed counts payloads that did not decode as ticks.
func (t *Tail) Malformed() int64 {
	return t.malformed.Load()
}

// Close ends the tail with a normal closure. Safe to call more than once.
func (t *Tail) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closing.Store(true)
		close(t.done)
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(t.cfg.WriteTimeout),
		)
		err = t.conn.Close()
	})
	return err
}

func (t *Tail) extendDeadline() {
	if t.cfg.PingTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.cfg.PingTimeout))
	}
}

func (t *Tail) read() {
	defer close(t.frames)

	t.extendDeadline()
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.err = t.classify(err)
			return
		}
		t.extendDeadline()

		tick, err := model.DecodeTick(data)
		if err != nil {
			t.malformed.Add(1)
			t.logger.Warn("dropping malformed tail frame", "error", err)
			continue
		}

		frame := TailFrame{Tick: tick, Raw: data, Lag: time.Since(tick.ObservedTime())}
		select {
		case t.frames <- frame:
		case <-t.done:
			return
		}
	}
}

// classify maps a read error to the reason the tail ended.
func (t *Tail) classify(err error) error {
	if t.closing.Load() {
		return nil
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		if ce.Code == websocket.CloseNormalClosure {
			return ErrTailEnded
		}
		return fmt.Errorf("%w: code %d %s", ErrTailAborted, ce.Code, ce.Text)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTailStale
	}
	return fmt.Errorf("read tail: %w", err)
}
