package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/tickstream/internal/bus"
	"github.com/rickgao/tickstream/internal/cold"
	"github.com/rickgao/tickstream/internal/metrics"
	"github.com/rickgao/tickstream/internal/model"
	"github.com/rickgao/tickstream/internal/warm"
)

// Errors
var (
	// ErrInstrumentUnknown means neither store has anything for the instrument.
	ErrInstrumentUnknown = errors.New("instrument unknown")

	// ErrStoreUnavailable wraps infrastructure failures of either store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidRange is returned for a history window that ends before it starts.
	ErrInvalidRange = errors.New("invalid time range")

	// ErrSubscriptionLost is returned when a live tail ends without cancellation.
	ErrSubscriptionLost = errors.New("subscription ended")
)

// DefaultHistoryLimit bounds History when the caller passes no limit.
const DefaultHistoryLimit = 100

// WarmReader reads the newest sample of a series.
type WarmReader interface {
	Get(ctx context.Context, key string) (model.Sample, error)
}

// ColdReader reads durable history.
type ColdReader interface {
	Latest(ctx context.Context, instrumentID string) (int64, error)
	History(ctx context.Context, instrumentID string, start, end time.Time, limit int) ([]model.HistoryRow, error)
	Instruments(ctx context.Context) ([]string, error)
}

// Perturber moves a price by one random-walk step.
type Perturber interface {
	Step(price int64) int64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithHistoryLimit sets the default history limit.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithClock overrides the time source used for the default history end.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service answers read queries.
type Service struct {
	warm    WarmReader
	cold    ColdReader
	bus     bus.Subscriber
	channel string
	perturb Perturber

	logger       *slog.Logger
	metrics      *metrics.Metrics
	historyLimit int
	now          func() time.Time
}

// New creates a Service. channel is the base bus channel used for tails.
func New(w WarmReader, c ColdReader, sub bus.Subscriber, channel string, p Perturber, opts ...Option) *Service {
	s := &Service{
		warm:         w,
		cold:         c,
		bus:          sub,
		channel:      channel,
		perturb:      p,
		logger:       slog.Default(),
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Latest returns the current price of instrumentID moved by one
// random-walk step, never below zero.
func (s *Service) Latest(ctx context.Context, instrumentID string) (int64, error) {
	price, source, err := s.latestStored(ctx, instrumentID)
	if err != nil {
		return 0, err
	}
	s.metrics.LatestServed(source)

	if s.perturb != nil {
		price = s.perturb.Step(price)
	}
	return max(price, 0), nil
}

func (s *Service) latestStored(ctx context.Context, instrumentID string) (int64, string, error) {
	sample, err := s.warm.Get(ctx, instrumentID)
	switch {
	case err == nil:
		return sample.Value, "warm", nil
	case errors.Is(err, warm.ErrSeriesNotFound), errors.Is(err, warm.ErrNoSample):
		s.logger.Debug("warm miss, reading cold", "ticker", instrumentID, "reason", err)
	default:
		return 0, "", fmt.Errorf("%w: warm %s: %w", ErrStoreUnavailable, instrumentID, err)
	}

	price, err := s.cold.Latest(ctx, instrumentID)
	switch {
	case err == nil:
		return price, "cold", nil
	case errors.Is(err, cold.ErrNoRows):
		return 0, "", fmt.Errorf("%w: %s", ErrInstrumentUnknown, instrumentID)
	default:
		return 0, "", fmt.Errorf("%w: cold %s: %w", ErrStoreUnavailable, instrumentID, err)
	}
}

// History returns up to limit prices of instrumentID between start and end,
// most recent first. Zero start means the beginning of time, zero end means
// now, and a non-positive limit uses the default.
func (s *Service) History(ctx context.Context, instrumentID string, start, end time.Time, limit int) (model.History, error) {
	if end.IsZero() {
		end = s.now()
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	if end.Before(start) {
		return model.History{}, fmt.Errorf("%w: %s after %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	rows, err := s.cold.History(ctx, instrumentID, start, end, limit)
	if err != nil {
		return model.History{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return model.NewHistory(instrumentID, rows), nil
}

// Instruments lists every registered instrument.
func (s *Service) Instruments(ctx context.Context) ([]string, error) {
	ids, err := s.cold.Instruments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Tail relays live payloads for instrumentID (all instruments when empty)
// to sink until ctx is cancelled or sink fails. Nothing published before
// the subscription is confirmed is replayed.
func (s *Service) Tail(ctx context.Context, instrumentID string, sink func([]byte) error) error {
	topic := model.TailTopic(s.channel, instrumentID)
	sub, err := s.bus.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer sub.Close()

	s.metrics.TailOpened()
	defer s.metrics.TailClosed()
	s.logger.Debug("tail opened", "topic", topic)

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-sub.Messages():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("tail %s: %w", topic, ErrSubscriptionLost)
			}
			if err := sink(payload); err != nil {
				return fmt.Errorf("tail %s: %w", topic, err)
			}
		}
	}
}
