package config

import "time"

// Config is the root configuration shared by the scraper, filler and api binaries.
// Each binary reads only the sections it needs.
type Config struct {
	Instance    InstanceConfig    `yaml:"instance"`
	Log         LogConfig         `yaml:"log"`
	Bus         BusConfig         `yaml:"bus"`
	Warm        WarmConfig        `yaml:"warm"`
	Database    DatabaseConfig    `yaml:"database"`
	Instruments InstrumentsConfig `yaml:"instruments"`
	Scraper     ScraperConfig     `yaml:"scraper"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// InstanceConfig identifies this process in logs and health output.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// LogConfig controls the slog handler built in main.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// RedisConfig holds a single Redis endpoint.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// BusConfig is the Redis instance used for Pub/Sub.
type BusConfig struct {
	RedisConfig `yaml:",inline"`

	// Channel is the aggregate topic. Per-instrument topics are "<channel>.<ticker>".
	Channel string `yaml:"channel"`
}

// WarmConfig is the RedisTimeSeries instance and the options every series is created with.
type WarmConfig struct {
	RedisConfig `yaml:",inline"`

	Retention       time.Duration     `yaml:"retention"`        // 0 = never trimmed
	DuplicatePolicy string            `yaml:"duplicate_policy"` // block, first, last, min, max
	ChunkSize       int               `yaml:"chunk_size"`       // bytes, 0 = server default
	Uncompressed    bool              `yaml:"uncompressed"`
	Labels          map[string]string `yaml:"labels"`
}

// DatabaseConfig holds the TimescaleDB connection for the cold store.
type DatabaseConfig struct {
	Timescale    DBConfig `yaml:"timescale"`
	PricesTable  string   `yaml:"prices_table"`
	TickersTable string   `yaml:"tickers_table"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// InstrumentsConfig lists the instruments every component bootstraps and serves.
// When Tickers is empty, Generate names are produced as ticker_00, ticker_01, ...
type InstrumentsConfig struct {
	Tickers  []string `yaml:"tickers"`
	Generate int      `yaml:"generate"`
}

// ScraperConfig holds tick source settings.
type ScraperConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"`
	Seed        uint64        `yaml:"seed"` // 0 = random
}

// APIConfig holds Read API server settings.
type APIConfig struct {
	Addr           string        `yaml:"addr"`
	HistoryLimit   int           `yaml:"history_limit"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	TailBufferSize int           `yaml:"tail_buffer_size"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
