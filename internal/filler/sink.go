package filler

import (
	"context"
	"fmt"

	"github.com/rickgao/tickstream/internal/cold"
	"github.com/rickgao/tickstream/internal/model"
	"github.com/rickgao/tickstream/internal/warm"
)

// Sink is a store a filler writes to.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Bootstrap prepares the store for instruments. It must be idempotent.
	Bootstrap(ctx context.Context, instruments []string) error

	// Append persists one tick.
	Append(ctx context.Context, tick model.Tick) error
}

// WarmSink writes to the Warm Store.
type WarmSink struct {
	Store *warm.Store
}

// Name implements Sink.
func (WarmSink) Name() string { return "warm" }

// Bootstrap ensures one series per instrument.
func (s WarmSink) Bootstrap(ctx context.Context, instruments []string) error {
	for _, id := range instruments {
		if err := s.Store.EnsureSeries(ctx, id); err != nil {
			return fmt.Errorf("ensure series: %w", err)
		}
	}
	return nil
}

// Append implements Sink.
func (s WarmSink) Append(ctx context.Context, tick model.Tick) error {
	return s.Store.Append(ctx, tick)
}

// ColdSink writes to the Cold Store.
type ColdSink struct {
	Store *cold.Store
}

// Name implements Sink.
func (ColdSink) Name() string { return "cold" }

// Bootstrap creates the schema and registers missing instruments.
func (s ColdSink) Bootstrap(ctx context.Context, instruments []string) error {
	if err := s.Store.EnsureSchema(ctx); err != nil {
		return err
	}
	_, err := s.Store.EnsureRegistry(ctx, instruments)
	return err
}

// Append implements Sink.
func (s ColdSink) Append(ctx context.Context, tick model.Tick) error {
	return s.Store.Append(ctx, tick)
}
