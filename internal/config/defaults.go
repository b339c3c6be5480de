package config

import (
	"time"

	"github.com/google/uuid"
)

// Default values for optional configuration fields.
const (
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
	DefaultBusAddr          = "localhost:6380"
	DefaultChannel          = "stocks"
	DefaultWarmAddr         = "localhost:6379"
	DefaultRetention        = 60 * time.Second
	DefaultDuplicatePolicy  = "last"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultPricesTable      = "prices"
	DefaultTickersTable     = "tickers"
	DefaultGenerateTickers  = 100
	DefaultScrapeInterval   = 1 * time.Second
	DefaultScrapeConcurrent = 10
	DefaultScrapeTimeout    = 5 * time.Second
	DefaultAPIAddr          = ":8000"
	DefaultHistoryLimit     = 100
	DefaultPingInterval     = 30 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultTailBufferSize   = 256
	DefaultMetricsPort      = 9090
	DefaultMetricsPath      = "/metrics"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = uuid.NewString()
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Bus defaults
	if c.Bus.Addr == "" {
		c.Bus.Addr = DefaultBusAddr
	}
	if c.Bus.Channel == "" {
		c.Bus.Channel = DefaultChannel
	}

	// Warm store defaults
	if c.Warm.Addr == "" {
		c.Warm.Addr = DefaultWarmAddr
	}
	if c.Warm.Retention == 0 {
		c.Warm.Retention = DefaultRetention
	}
	if c.Warm.DuplicatePolicy == "" {
		c.Warm.DuplicatePolicy = DefaultDuplicatePolicy
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)
	if c.Database.PricesTable == "" {
		c.Database.PricesTable = DefaultPricesTable
	}
	if c.Database.TickersTable == "" {
		c.Database.TickersTable = DefaultTickersTable
	}

	// Instruments defaults
	if len(c.Instruments.Tickers) == 0 && c.Instruments.Generate == 0 {
		c.Instruments.Generate = DefaultGenerateTickers
	}

	// Scraper defaults
	if c.Scraper.Interval == 0 {
		c.Scraper.Interval = DefaultScrapeInterval
	}
	if c.Scraper.Concurrency == 0 {
		c.Scraper.Concurrency = DefaultScrapeConcurrent
	}
	if c.Scraper.Timeout == 0 {
		c.Scraper.Timeout = DefaultScrapeTimeout
	}

	// API defaults
	if c.API.Addr == "" {
		c.API.Addr = DefaultAPIAddr
	}
	if c.API.HistoryLimit == 0 {
		c.API.HistoryLimit = DefaultHistoryLimit
	}
	if c.API.PingInterval == 0 {
		c.API.PingInterval = DefaultPingInterval
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = DefaultWriteTimeout
	}
	if c.API.TailBufferSize == 0 {
		c.API.TailBufferSize = DefaultTailBufferSize
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
