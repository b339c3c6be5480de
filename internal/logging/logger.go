// Package logging builds the process slog.Logger from configuration.
package logging

import (
	"io"
	"log/slog"

	"github.com/rickgao/tickstream/internal/config"
)

// New returns a logger writing to w at the configured level and format.
// Invalid levels fall back to info; Validate rejects them earlier.
func New(cfg config.LogConfig, w io.Writer) *slog.Logger {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}
