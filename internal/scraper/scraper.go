package scraper

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/tickstream/internal/metrics"
	"github.com/rickgao/tickstream/internal/model"
)

// PriceSource provides the next price of an instrument.
type PriceSource interface {
	Latest(ctx context.Context, instrumentID string) (int64, error)
}

// TickPublisher fans a tick out to the bus.
type TickPublisher interface {
	PublishTick(ctx context.Context, tick model.Tick) error
}

// Config holds scraper configuration.
type Config struct {
	Interval    time.Duration // Cycle interval (default: 1s)
	Concurrency int           // Max instruments in flight (default: 10)
	Timeout     time.Duration // Per-instrument timeout (default: 5s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}
}

// Stats counts scrape outcomes since start.
type Stats struct {
	Cycles    int64
	Published int64
	Errors    int64
}

// Scraper periodically emits a tick for every instrument.
type Scraper struct {
	cfg         Config
	instruments []string
	source      PriceSource
	publisher   TickPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	cycles    atomic.Int64
	published atomic.Int64
	errors    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Scraper.
func New(cfg Config, instruments []string, source PriceSource, pub TickPublisher, m *metrics.Metrics, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Scraper{
		cfg:         cfg,
		instruments: instruments,
		source:      source,
		publisher:   pub,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// Start begins the scrape loop.
func (s *Scraper) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.run()

	s.logger.Info("scraper started",
		"instruments", len(s.instruments),
		"interval", s.cfg.Interval,
		"concurrency", s.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the scraper.
func (s *Scraper) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scraper stopped", "stats", s.Stats())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (s *Scraper) Stats() Stats {
	return Stats{
		Cycles:    s.cycles.Load(),
		Published: s.published.Load(),
		Errors:    s.errors.Load(),
	}
}

// run is the main loop.
func (s *Scraper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.scrapeAll()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.scrapeAll()
		}
	}
}

// scrapeAll emits one tick per instrument concurrently.
func (s *Scraper) scrapeAll() {
	if len(s.instruments) == 0 {
		s.logger.Debug("no instruments to scrape")
		return
	}
	start := time.Now()

	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup
	var published, failed atomic.Int64

	for _, id := range s.instruments {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-s.ctx.Done():
				return
			}

			if err := s.scrapeOne(id); err != nil {
				if s.ctx.Err() != nil {
					return
				}
				s.logger.Warn("failed to scrape instrument",
					"ticker", id,
					"error", err,
				)
				failed.Add(1)
				return
			}
			published.Add(1)
		}(id)
	}

	wg.Wait()

	s.cycles.Add(1)
	s.published.Add(published.Load())
	s.errors.Add(failed.Load())
	s.metrics.ScrapeCycle(time.Since(start), int(failed.Load()))

	s.logger.Debug("scrape cycle complete",
		"instruments", len(s.instruments),
		"published", published.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// scrapeOne reads, stamps and publishes one instrument.
func (s *Scraper) scrapeOne(id string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.Timeout)
	defer cancel()

	price, err := s.source.Latest(ctx, id)
	if err != nil {
		return err
	}

	tick := model.Tick{
		InstrumentID: id,
		Value:        price,
		ObservedAt:   s.now().Unix(),
	}
	return s.publisher.PublishTick(ctx, tick)
}
