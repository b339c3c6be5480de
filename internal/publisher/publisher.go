// Package publisher fans one tick out to its per-instrument and aggregate topics.
package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tickstream/internal/bus"
	"github.com/rickgao/tickstream/internal/metrics"
	"github.com/rickgao/tickstream/internal/model"
)

// Publisher is the Fan-out Publisher.
type Publisher struct {
	bus     bus.Publisher
	base    string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Publisher for the given base channel.
func New(b bus.Publisher, base string, m *metrics.Metrics, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		bus:     b,
		base:    base,
		logger:  logger,
		metrics: m,
	}
}

// Topics returns the fan-out targets for an instrument.
func (p *Publisher) Topics(instrumentID string) []string {
	return []string{
		model.InstrumentTopic(p.base, instrumentID),
		model.AggregateTopic(p.base),
	}
}

// PublishTick encodes tick once and publishes it to every fan-out topic
// concurrently. Both publishes are always attempted; the first error is
// returned after both have finished.
func (p *Publisher) PublishTick(ctx context.Context, tick model.Tick) error {
	payload, err := tick.Encode()
	if err != nil {
		return fmt.Errorf("encode tick %s: %w", tick.InstrumentID, err)
	}

	// Not errgroup.WithContext: a failure must not cancel the sibling publish.
	var g errgroup.Group
	for _, topic := range p.Topics(tick.InstrumentID) {
		g.Go(func() error {
			if err := p.bus.Publish(ctx, topic, payload); err != nil {
				p.logger.Warn("publish failed", "topic", topic, "error", err)
				p.metrics.PublishFailed(topic)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fan out tick %s: %w", tick.InstrumentID, err)
	}

	p.metrics.TickPublished(tick.InstrumentID)
	return nil
}
