package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedTick is returned by DecodeTick for payloads that are not a tick.
var ErrMalformedTick = errors.New("malformed tick")

// -----------------------------------------------------------------------------
// Bus Types
// -----------------------------------------------------------------------------

// Tick is one price observation for an instrument.
type Tick struct {
	InstrumentID string // Ticker
	Value        int64  // Price
	ObservedAt   int64  // Producer timestamp (s since epoch)
}

// tickWire is the bus encoding of a Tick.
type tickWire struct {
	Ticker    *string `json:"ticker"`
	Price     *int64  `json:"price"`
	Timestamp *int64  `json:"timestamp"`
}

// ObservedTime returns ObservedAt as a UTC time.
func (t Tick) ObservedTime() time.Time {
	return time.Unix(t.ObservedAt, 0).UTC()
}

// Encode serializes the tick to its wire form.
func (t Tick) Encode() ([]byte, error) {
	return json.Marshal(tickWire{
		Ticker:    &t.InstrumentID,
		Price:     &t.Value,
		Timestamp: &t.ObservedAt,
	})
}

// DecodeTick parses a bus payload. Every field must be present and
// the ticker must be non-empty; anything else wraps ErrMalformedTick.
func DecodeTick(data []byte) (Tick, error) {
	var wire tickWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Tick{}, fmt.Errorf("%w: %v", ErrMalformedTick, err)
	}
	if wire.Ticker == nil || *wire.Ticker == "" {
		return Tick{}, fmt.Errorf("%w: missing ticker", ErrMalformedTick)
	}
	if wire.Price == nil {
		return Tick{}, fmt.Errorf("%w: missing price", ErrMalformedTick)
	}
	if wire.Timestamp == nil {
		return Tick{}, fmt.Errorf("%w: missing timestamp", ErrMalformedTick)
	}
	return Tick{
		InstrumentID: *wire.Ticker,
		Value:        *wire.Price,
		ObservedAt:   *wire.Timestamp,
	}, nil
}

// AggregateTopic is the channel every tick is published to.
func AggregateTopic(base string) string {
	return base
}

// InstrumentTopic is the channel carrying a single instrument's ticks.
func InstrumentTopic(base, instrumentID string) string {
	return base + "." + instrumentID
}

// TailTopic selects the per-instrument topic when instrumentID is set,
// otherwise the aggregate topic.
func TailTopic(base, instrumentID string) string {
	if instrumentID == "" {
		return AggregateTopic(base)
	}
	return InstrumentTopic(base, instrumentID)
}

// -----------------------------------------------------------------------------
// Store Types
// -----------------------------------------------------------------------------

// Sample is one warm store point.
type Sample struct {
	Timestamp int64 // the tick's ObservedAt, unchanged
	Value     int64
}

// HistoryRow is one row of the cold store prices table.
type HistoryRow struct {
	Ticker string
	Price  int64
	Ts     time.Time
}

// History is a range of prices for one instrument, most recent first.
type History struct {
	Ticker     string
	Prices     []int64
	Timestamps []time.Time
}

// NewHistory flattens rows into parallel price/timestamp slices.
func NewHistory(ticker string, rows []HistoryRow) History {
	h := History{
		Ticker:     ticker,
		Prices:     make([]int64, 0, len(rows)),
		Timestamps: make([]time.Time, 0, len(rows)),
	}
	for _, r := range rows {
		h.Prices = append(h.Prices, r.Price)
		h.Timestamps = append(h.Timestamps, r.Ts)
	}
	return h
}
