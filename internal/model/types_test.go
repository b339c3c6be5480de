package model

import (
	"errors"
	"testing"
	"time"
)

func TestTick_Encode(t *testing.T) {
	tick := Tick{InstrumentID: "AAA", Value: 10, ObservedAt: 1000}

	data, err := tick.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := `{"ticker":"AAA","price":10,"timestamp":1000}`
	if string(data) != want {
		t.Errorf("Encode() = %s, want %s", data, want)
	}
}

func TestDecodeTick(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Tick
		wantErr bool
	}{
		{
			name:    "valid",
			payload: `{"ticker":"AAA","price":10,"timestamp":1000}`,
			want:    Tick{InstrumentID: "AAA", Value: 10, ObservedAt: 1000},
		},
		{
			name:    "negative price passes through",
			payload: `{"ticker":"AAA","price":-3,"timestamp":1000}`,
			want:    Tick{InstrumentID: "AAA", Value: -3, ObservedAt: 1000},
		},
		{
			name:    "zero price",
			payload: `{"ticker":"ticker_00","price":0,"timestamp":0}`,
			want:    Tick{InstrumentID: "ticker_00", Value: 0, ObservedAt: 0},
		},
		{name: "not json", payload: `hello`, wantErr: true},
		{name: "missing ticker", payload: `{"price":10,"timestamp":1000}`, wantErr: true},
		{name: "empty ticker", payload: `{"ticker":"","price":10,"timestamp":1000}`, wantErr: true},
		{name: "missing price", payload: `{"ticker":"AAA","timestamp":1000}`, wantErr: true},
		{name: "missing timestamp", payload: `{"ticker":"AAA","price":10}`, wantErr: true},
		{name: "string price", payload: `{"ticker":"AAA","price":"10","timestamp":1000}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTick([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedTick) {
					t.Fatalf("DecodeTick() error = %v, want ErrMalformedTick", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeTick() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeTick() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	if got := AggregateTopic("stocks"); got != "stocks" {
		t.Errorf("AggregateTopic = %q, want stocks", got)
	}
	if got := InstrumentTopic("stocks", "AAA"); got != "stocks.AAA" {
		t.Errorf("InstrumentTopic = %q, want stocks.AAA", got)
	}
	if got := TailTopic("stocks", ""); got != "stocks" {
		t.Errorf("TailTopic(empty) = %q, want stocks", got)
	}
	if got := TailTopic("stocks", "BBB"); got != "stocks.BBB" {
		t.Errorf("TailTopic(BBB) = %q, want stocks.BBB", got)
	}
}

func TestNewHistory(t *testing.T) {
	t1 := time.Unix(2000, 0).UTC()
	t2 := time.Unix(1000, 0).UTC()
	h := NewHistory("AAA", []HistoryRow{
		{Ticker: "AAA", Price: 11, Ts: t1},
		{Ticker: "AAA", Price: 10, Ts: t2},
	})

	if h.Ticker != "AAA" {
		t.Errorf("Ticker = %q, want AAA", h.Ticker)
	}
	if len(h.Prices) != 2 || h.Prices[0] != 11 || h.Prices[1] != 10 {
		t.Errorf("Prices = %v, want [11 10]", h.Prices)
	}
	if !h.Timestamps[0].Equal(t1) || !h.Timestamps[1].Equal(t2) {
		t.Errorf("Timestamps = %v", h.Timestamps)
	}

	empty := NewHistory("ZZZ", nil)
	if empty.Prices == nil || len(empty.Prices) != 0 {
		t.Errorf("empty Prices = %v, want non-nil empty slice", empty.Prices)
	}
}

func TestTick_ObservedTime(t *testing.T) {
	tick := Tick{ObservedAt: 1000}
	if got := tick.ObservedTime(); !got.Equal(time.Unix(1000, 0)) || got.Location() != time.UTC {
		t.Errorf("ObservedTime() = %v", got)
	}
}
