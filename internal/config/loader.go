package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes after expanding ${VAR} references.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// TickerList returns the configured instruments, generating names when no
// explicit list is given.
func (c *Config) TickerList() []string {
	if len(c.Instruments.Tickers) > 0 {
		out := make([]string, len(c.Instruments.Tickers))
		copy(out, c.Instruments.Tickers)
		return out
	}
	return GenerateTickers(c.Instruments.Generate)
}

// GenerateTickers returns n names of the form ticker_00, ticker_01, ...
func GenerateTickers(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("ticker_%02d", i)
	}
	return out
}
