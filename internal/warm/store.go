package warm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/tickstream/internal/model"
)

// Errors
var (
	// ErrSeriesNotFound is the expected-absent condition: the series key does not exist.
	ErrSeriesNotFound = errors.New("series does not exist")

	// ErrSeriesExists is returned by Create for a key that is already a series.
	ErrSeriesExists = errors.New("series already exists")

	// ErrNoSample means the series exists but holds no samples yet.
	ErrNoSample = errors.New("series has no samples")
)

// Doer issues raw Redis commands. *redis.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, args ...any) *redis.Cmd
}

// SeriesInfo is the subset of TS.INFO the pipeline uses.
type SeriesInfo struct {
	TotalSamples    int64
	RetentionMillis int64
	FirstTimestamp  int64
	LastTimestamp   int64
	ChunkSize       int64
	DuplicatePolicy string
	Labels          map[string]string
}

// Store is the Warm Store adapter.
type Store struct {
	rdb    Doer
	opts   SeriesOptions
	logger *slog.Logger
}

// NewStore creates a Store that creates series with opts.
func NewStore(rdb Doer, opts SeriesOptions, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rdb:    rdb,
		opts:   opts,
		logger: logger,
	}
}

// Options returns the series options used by EnsureSeries.
func (s *Store) Options() SeriesOptions {
	return s.opts
}

// Create issues TS.CREATE for key.
func (s *Store) Create(ctx context.Context, key string, opts SeriesOptions) error {
	if err := s.rdb.Do(ctx, opts.createArgs(key)...).Err(); err != nil {
		return classify(err)
	}
	return nil
}

// Info issues TS.INFO for key.
func (s *Store) Info(ctx context.Context, key string) (SeriesInfo, error) {
	v, err := s.rdb.Do(ctx, "TS.INFO", key).Result()
	if err != nil {
		return SeriesInfo{}, classify(err)
	}
	return parseInfo(v)
}

// Add appends a sample at ts. The configured duplicate policy is
// passed as ON_DUPLICATE so it also applies to series created by TS.ADD itself.
func (s *Store) Add(ctx context.Context, key string, ts, value int64) error {
	args := []any{"TS.ADD", key, ts, value}
	if s.opts.DuplicatePolicy != "" {
		args = append(args, "ON_DUPLICATE", string(s.opts.DuplicatePolicy))
	}
	if err := s.rdb.Do(ctx, args...).Err(); err != nil {
		return classify(err)
	}
	return nil
}

// Get returns the newest sample of key.
func (s *Store) Get(ctx context.Context, key string) (model.Sample, error) {
	v, err := s.rdb.Do(ctx, "TS.GET", key).Result()
	if err != nil {
		return model.Sample{}, classify(err)
	}
	return parseSample(v)
}

// EnsureSeries creates the series for instrumentID unless it already exists.
// A concurrent creator winning the race is treated as success.
func (s *Store) EnsureSeries(ctx context.Context, instrumentID string) error {
	if _, err := s.Info(ctx, instrumentID); err == nil {
		return nil
	} else if !errors.Is(err, ErrSeriesNotFound) {
		return fmt.Errorf("info %s: %w", instrumentID, err)
	}

	err := s.Create(ctx, instrumentID, s.opts)
	switch {
	case err == nil:
		s.logger.Debug("warm series created",
			"ticker", instrumentID,
			"retention", s.opts.Retention,
			"duplicate_policy", s.opts.DuplicatePolicy,
		)
		return nil
	case errors.Is(err, ErrSeriesExists):
		return nil
	default:
		return fmt.Errorf("create %s: %w", instrumentID, err)
	}
}

// Append stores tick at its own observation time.
func (s *Store) Append(ctx context.Context, tick model.Tick) error {
	return s.Add(ctx, tick.InstrumentID, tick.ObservedAt, tick.Value)
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Do(ctx, "PING").Err()
}

// classify maps RedisTimeSeries error replies to sentinel errors.
// Only server replies are inspected; network errors pass through unchanged.
func classify(err error) error {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return err
	}
	msg := strings.ToLower(rerr.Error())
	switch {
	case strings.Contains(msg, "key does not exist"):
		return fmt.Errorf("%w: %s", ErrSeriesNotFound, rerr.Error())
	case strings.Contains(msg, "key already exists"):
		return fmt.Errorf("%w: %s", ErrSeriesExists, rerr.Error())
	}
	return err
}

// parseSample decodes a TS.GET reply: [] or [timestamp, value].
func parseSample(v any) (model.Sample, error) {
	arr, ok := v.([]any)
	if !ok {
		return model.Sample{}, fmt.Errorf("unexpected TS.GET reply %T", v)
	}
	if len(arr) == 0 {
		return model.Sample{}, ErrNoSample
	}
	if len(arr) != 2 {
		return model.Sample{}, fmt.Errorf("unexpected TS.GET reply length %d", len(arr))
	}
	ts, err := toInt64(arr[0])
	if err != nil {
		return model.Sample{}, fmt.Errorf("sample timestamp: %w", err)
	}
	f, err := toFloat64(arr[1])
	if err != nil {
		return model.Sample{}, fmt.Errorf("sample value: %w", err)
	}
	return model.Sample{Timestamp: ts, Value: int64(math.Round(f))}, nil
}

// parseInfo decodes a TS.INFO reply given as a RESP2 flat array or a RESP3 map.
func parseInfo(v any) (SeriesInfo, error) {
	fields := make(map[string]any)
	switch reply := v.(type) {
	case []any:
		for i := 0; i+1 < len(reply); i += 2 {
			name, ok := reply[i].(string)
			if !ok {
				continue
			}
			fields[name] = reply[i+1]
		}
	case map[any]any:
		for k, val := range reply {
			if name, ok := k.(string); ok {
				fields[name] = val
			}
		}
	default:
		return SeriesInfo{}, fmt.Errorf("unexpected TS.INFO reply %T", v)
	}

	info := SeriesInfo{Labels: make(map[string]string)}
	info.TotalSamples, _ = toInt64(fields["totalSamples"])
	info.RetentionMillis, _ = toInt64(fields["retentionTime"])
	info.FirstTimestamp, _ = toInt64(fields["firstTimestamp"])
	info.LastTimestamp, _ = toInt64(fields["lastTimestamp"])
	info.ChunkSize, _ = toInt64(fields["chunkSize"])
	if p, ok := fields["duplicatePolicy"].(string); ok {
		info.DuplicatePolicy = strings.ToLower(p)
	}

	switch labels := fields["labels"].(type) {
	case []any:
		for _, pair := range labels {
			kv, ok := pair.([]any)
			if !ok || len(kv) != 2 {
				continue
			}
			name, _ := kv[0].(string)
			value, _ := kv[1].(string)
			info.Labels[name] = value
		}
	case map[any]any:
		for k, val := range labels {
			name, _ := k.(string)
			value, _ := val.(string)
			info.Labels[name] = value
		}
	}
	return info, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case nil:
		return 0, errors.New("missing value")
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}
