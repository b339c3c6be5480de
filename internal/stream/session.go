package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session is the server side of one WebSocket tail.
type Session struct {
	id     string
	cfg    SessionConfig
	conn   *websocket.Conn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu   sync.Mutex
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSession takes ownership of conn. The session context is derived from
// parent and is cancelled when the peer disconnects, stops answering pings,
// or Close is called.
func NewSession(parent context.Context, conn *websocket.Conn, cfg SessionConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:     id,
		cfg:    cfg,
		conn:   conn,
		logger: logger.With("session", id),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}
	s.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		s.extendReadDeadline()
		return nil
	})

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()

	s.logger.Debug("session opened", "remote", conn.RemoteAddr().String())
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Context is cancelled once the session is over.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Send writes one text frame.
func (s *Session) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.cfg.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with code and reason, then releases the
// connection. Safe to call more than once.
func (s *Session) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
		s.wg.Wait()
		s.logger.Debug("session closed", "code", code)
	})
	return err
}

func (s *Session) extendReadDeadline() {
	if s.cfg.PongTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	}
}

// readLoop discards inbound frames; its only job is noticing the peer leave.
func (s *Session) readLoop() {
	defer s.wg.Done()
	defer s.cancel()

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && s.ctx.Err() == nil {
				s.logger.Debug("peer read failed", "error", err)
			}
			return
		}
		s.extendReadDeadline()
	}
}

// pingLoop keeps the connection alive.
func (s *Session) pingLoop() {
	defer s.wg.Done()

	if s.cfg.PingInterval <= 0 {
		<-s.ctx.Done()
		return
	}

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(max(s.cfg.WriteTimeout, time.Second))
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				s.logger.Debug("failed to send ping", "error", err)
				s.cancel()
				return
			}
		}
	}
}
