package warm

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rickgao/tickstream/internal/config"
)

// DuplicatePolicy decides what happens when a sample is added at an existing timestamp.
type DuplicatePolicy string

const (
	// PolicyBlock rejects the new sample with an error.
	PolicyBlock DuplicatePolicy = "block"
	// PolicyFirst keeps the existing value.
	PolicyFirst DuplicatePolicy = "first"
	// PolicyLast overwrites with the new value.
	PolicyLast DuplicatePolicy = "last"
	// PolicyMin keeps the lower value.
	PolicyMin DuplicatePolicy = "min"
	// PolicyMax keeps the higher value.
	PolicyMax DuplicatePolicy = "max"
)

// ParseDuplicatePolicy validates s.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	p := DuplicatePolicy(strings.ToLower(s))
	switch p {
	case PolicyBlock, PolicyFirst, PolicyLast, PolicyMin, PolicyMax:
		return p, nil
	}
	return "", fmt.Errorf("unknown duplicate policy %q", s)
}

// SeriesOptions are the TS.CREATE arguments applied to every instrument series.
type SeriesOptions struct {
	// Retention is the maximum sample age relative to the newest sample.
	// Zero keeps samples forever.
	Retention time.Duration

	// DuplicatePolicy resolves writes at an existing timestamp.
	// Empty uses the server default.
	DuplicatePolicy DuplicatePolicy

	// ChunkSize is the chunk memory size in bytes. Zero uses the server default.
	ChunkSize int

	// Uncompressed stores samples without compression.
	Uncompressed bool

	// Labels are metadata label-value pairs attached to the series.
	Labels map[string]string
}

// createArgs builds the TS.CREATE command.
func (o SeriesOptions) createArgs(key string) []any {
	args := []any{"TS.CREATE", key}
	if o.Retention > 0 {
		args = append(args, "RETENTION", o.Retention.Milliseconds())
	}
	if o.Uncompressed {
		args = append(args, "UNCOMPRESSED")
	}
	if o.ChunkSize > 0 {
		args = append(args, "CHUNK_SIZE", o.ChunkSize)
	}
	if o.DuplicatePolicy != "" {
		args = append(args, "DUPLICATE_POLICY", string(o.DuplicatePolicy))
	}
	if len(o.Labels) > 0 {
		names := make([]string, 0, len(o.Labels))
		for name := range o.Labels {
			names = append(names, name)
		}
		sort.Strings(names)

		args = append(args, "LABELS")
		for _, name := range names {
			args = append(args, name, o.Labels[name])
		}
	}
	return args
}

// OptionsFromConfig builds SeriesOptions from the warm config section.
func OptionsFromConfig(cfg config.WarmConfig) (SeriesOptions, error) {
	opts := SeriesOptions{
		Retention:    cfg.Retention,
		ChunkSize:    cfg.ChunkSize,
		Uncompressed: cfg.Uncompressed,
		Labels:       cfg.Labels,
	}
	if cfg.DuplicatePolicy != "" {
		p, err := ParseDuplicatePolicy(cfg.DuplicatePolicy)
		if err != nil {
			return SeriesOptions{}, err
		}
		opts.DuplicatePolicy = p
	}
	return opts, nil
}
