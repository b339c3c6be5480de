package filler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/tickstream/internal/bus"
	"github.com/rickgao/tickstream/internal/metrics"
	"github.com/rickgao/tickstream/internal/model"
)

// ErrSubscriptionLost is returned when the bus ends the subscription while
// the filler is still running.
var ErrSubscriptionLost = errors.New("subscription ended")

// Config configures a Filler.
type Config struct {
	// Channel is the base channel name; the filler consumes its aggregate topic.
	Channel string

	// Instruments are bootstrapped before consumption starts.
	Instruments []string
}

// Stats counts what a filler has done.
type Stats struct {
	Received  int64
	Persisted int64
	Dropped   int64
	Errors    int64
}

// Filler consumes the aggregate topic into one Sink.
type Filler struct {
	cfg     Config
	sink    Sink
	bus     bus.Subscriber
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Filler.
func New(cfg Config, sink Sink, sub bus.Subscriber, m *metrics.Metrics, logger *slog.Logger) *Filler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filler{
		cfg:     cfg,
		sink:    sink,
		bus:     sub,
		metrics: m,
		logger:  logger.With("sink", sink.Name()),
	}
}

// Run bootstraps the sink, subscribes and persists ticks until ctx is
// cancelled (returns nil) or an append fails (returns the error).
func (f *Filler) Run(ctx context.Context) error {
	if err := f.sink.Bootstrap(ctx, f.cfg.Instruments); err != nil {
		return fmt.Errorf("bootstrap %s: %w", f.sink.Name(), err)
	}
	f.logger.Info("sink bootstrapped", "instruments", len(f.cfg.Instruments))

	topic := model.AggregateTopic(f.cfg.Channel)
	sub, err := f.bus.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	defer sub.Close()

	f.logger.Info("filler started", "topic", topic)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("filler stopped", "stats", f.Stats())
			return nil
		case payload, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() != nil {
					f.logger.Info("filler stopped", "stats", f.Stats())
					return nil
				}
				return fmt.Errorf("%s filler: %w", f.sink.Name(), ErrSubscriptionLost)
			}
			if err := f.handle(ctx, payload); err != nil {
				return err
			}
		}
	}
}

// Stats returns current counters.
func (f *Filler) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// handle decodes and persists one payload. Only append failures are returned.
func (f *Filler) handle(ctx context.Context, payload []byte) error {
	f.count(func(s *Stats) { s.Received++ })

	tick, err := model.DecodeTick(payload)
	if err != nil {
		f.logger.Warn("dropping malformed payload", "error", err, "size", len(payload))
		f.count(func(s *Stats) { s.Dropped++ })
		f.metrics.Dropped(f.sink.Name())
		return nil
	}

	start := time.Now()
	if err := f.sink.Append(ctx, tick); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		f.count(func(s *Stats) { s.Errors++ })
		f.metrics.PersistFailed(f.sink.Name())
		return fmt.Errorf("append %s to %s: %w", tick.InstrumentID, f.sink.Name(), err)
	}

	f.count(func(s *Stats) { s.Persisted++ })
	f.metrics.Persisted(f.sink.Name(), time.Since(start))
	f.logger.Debug("tick persisted", "ticker", tick.InstrumentID, "timestamp", tick.ObservedAt)
	return nil
}

func (f *Filler) count(update func(*Stats)) {
	f.mu.Lock()
	update(&f.stats)
	f.mu.Unlock()
}
