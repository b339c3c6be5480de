package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

var duplicatePolicies = map[string]bool{
	"block": true,
	"first": true,
	"last":  true,
	"min":   true,
	"max":   true,
}

// ReservedTickers are path segments the Read API routes before
// /api/stocks/{ticker}, so instruments with these names would be unreachable.
var ReservedTickers = []string{"tickers", "ws"}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Bus.Addr == "" {
		return errors.New("bus.addr is required")
	}
	if c.Bus.Channel == "" {
		return errors.New("bus.channel is required")
	}
	if strings.Contains(c.Bus.Channel, "*") {
		return fmt.Errorf("bus.channel must not contain glob characters, got %q", c.Bus.Channel)
	}

	if c.Warm.Addr == "" {
		return errors.New("warm.addr is required")
	}
	if c.Warm.Retention < 0 {
		return errors.New("warm.retention must be >= 0")
	}
	if !duplicatePolicies[c.Warm.DuplicatePolicy] {
		return fmt.Errorf("warm.duplicate_policy %q is not one of block, first, last, min, max", c.Warm.DuplicatePolicy)
	}
	if c.Warm.ChunkSize < 0 {
		return errors.New("warm.chunk_size must be >= 0")
	}

	if err := c.Database.Timescale.validate("database.timescale"); err != nil {
		return err
	}
	if c.Database.PricesTable == "" || c.Database.TickersTable == "" {
		return errors.New("database.prices_table and database.tickers_table are required")
	}

	if len(c.Instruments.Tickers) == 0 && c.Instruments.Generate < 1 {
		return errors.New("instruments.tickers or instruments.generate is required")
	}
	seen := make(map[string]bool, len(c.Instruments.Tickers))
	for _, t := range c.Instruments.Tickers {
		if t == "" {
			return errors.New("instruments.tickers must not contain empty names")
		}
		if seen[t] {
			return fmt.Errorf("instruments.tickers contains duplicate %q", t)
		}
		if slices.Contains(ReservedTickers, t) || strings.Contains(t, "/") {
			return fmt.Errorf("instruments.tickers: %q collides with an API route", t)
		}
		seen[t] = true
	}

	if c.Scraper.Interval <= 0 {
		return errors.New("scraper.interval must be > 0")
	}
	if c.Scraper.Concurrency < 1 {
		return errors.New("scraper.concurrency must be >= 1")
	}

	if c.API.HistoryLimit < 1 {
		return errors.New("api.history_limit must be >= 1")
	}
	if c.API.TailBufferSize < 1 {
		return errors.New("api.tail_buffer_size must be >= 1")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// ParseLevel maps a log.level string to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
}
