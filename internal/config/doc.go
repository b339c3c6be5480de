// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// All binaries share one schema; see configs/tickstream.example.yaml.
package config
