package stream

import (
	"errors"
	"time"
)

var (
	// ErrTailStale means the server stopped pinging for longer than PingTimeout.
	ErrTailStale = errors.New("tail stale: no ping from server")
	// ErrTailEnded means the server closed the tail normally.
	ErrTailEnded = errors.New("tail ended by server")
	// ErrTailAborted means the server closed the tail with an error code.
	ErrTailAborted = errors.New("tail aborted by server")
)

// SessionConfig tunes the server side of a tail.
type SessionConfig struct {
	PingInterval time.Duration // 0 disables pings
	PongTimeout  time.Duration // peer silence tolerated before the session ends
	WriteTimeout time.Duration
	ReadLimit    int64 // clients never send data frames, so this stays small
}

// DefaultSessionConfig matches the api section defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		ReadLimit:    4096,
	}
}

// TailConfig tunes a Tail consumer.
type TailConfig struct {
	URL          string        // ws://host:8000/api/stocks/ws?ticker=AAA
	PingTimeout  time.Duration // three server ping intervals by default
	WriteTimeout time.Duration // pong and close frames
	BufferSize   int
}

// DefaultTailConfig returns a config for url.
func DefaultTailConfig(url string) TailConfig {
	return TailConfig{
		URL:          url,
		PingTimeout:  90 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}
