package filler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tickstream/internal/bus"
	"github.com/rickgao/tickstream/internal/cold"
	"github.com/rickgao/tickstream/internal/cold/coldtest"
	"github.com/rickgao/tickstream/internal/model"
	"github.com/rickgao/tickstream/internal/warm"
	"github.com/rickgao/tickstream/internal/warm/warmtest"
)

type harness struct {
	bus *bus.Bus
	mr  *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	b := bus.New(rdb)
	t.Cleanup(func() { b.Close() })
	return &harness{bus: b, mr: mr}
}

// start runs f in the background and waits until it is subscribed.
func (h *harness) start(t *testing.T, f *Filler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()

	require.Eventually(t, func() bool {
		return h.mr.PubSubNumSub("stocks")["stocks"] > 0
	}, 2*time.Second, 5*time.Millisecond, "filler never subscribed")
	return cancel, errc
}

func (h *harness) publish(t *testing.T, payload []byte) {
	t.Helper()
	require.NoError(t, h.bus.Publish(context.Background(), "stocks", payload))
}

func encode(t *testing.T, tick model.Tick) []byte {
	t.Helper()
	b, err := tick.Encode()
	require.NoError(t, err)
	return b
}

func wait(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("filler did not stop")
		return nil
	}
}

func newWarmSink() (WarmSink, *warmtest.Server) {
	srv := warmtest.NewServer()
	store := warm.NewStore(srv, warm.SeriesOptions{
		Retention:       60 * time.Second,
		DuplicatePolicy: warm.PolicyLast,
	}, nil)
	return WarmSink{Store: store}, srv
}

func TestFiller_WarmPersistsTicks(t *testing.T) {
	h := newHarness(t)
	sink, srv := newWarmSink()
	f := New(Config{Channel: "stocks", Instruments: []string{"AAA"}}, sink, h.bus, nil, nil)

	cancel, errc := h.start(t, f)
	assert.True(t, srv.Exists("AAA"), "series should be created during bootstrap")

	h.publish(t, encode(t, model.Tick{InstrumentID: "AAA", Value: 10, ObservedAt: 1000}))
	h.publish(t, encode(t, model.Tick{InstrumentID: "AAA", Value: 11, ObservedAt: 1001}))

	require.Eventually(t, func() bool { return f.Stats().Persisted == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, [][2]int64{{1000, 10}, {1001, 11}}, srv.Samples("AAA"))

	cancel()
	assert.NoError(t, wait(t, errc))
}

func TestFiller_ColdPersistsTicks(t *testing.T) {
	h := newHarness(t)
	db := coldtest.NewDB()
	sink := ColdSink{Store: cold.NewStore(db, "prices", "tickers", nil)}
	f := New(Config{Channel: "stocks", Instruments: []string{"AAA"}}, sink, h.bus, nil, nil)

	cancel, errc := h.start(t, f)
	assert.True(t, db.Registered("AAA"))

	h.publish(t, encode(t, model.Tick{InstrumentID: "AAA", Value: 10, ObservedAt: 1000}))

	require.Eventually(t, func() bool { return f.Stats().Persisted == 1 }, 2*time.Second, 5*time.Millisecond)
	rows := db.Rows("AAA")
	require.Len(t, rows, 2, "seed row plus one tick")
	assert.Equal(t, int64(10), rows[1].Price)
	assert.Equal(t, time.Unix(1000, 0).UTC(), rows[1].Ts)

	cancel()
	assert.NoError(t, wait(t, errc))
}

func TestFiller_DropsMalformedPayloads(t *testing.T) {
	h := newHarness(t)
	sink, srv := newWarmSink()
	f := New(Config{Channel: "stocks", Instruments: []string{"AAA"}}, sink, h.bus, nil, nil)

	cancel, errc := h.start(t, f)
	defer cancel()

	h.publish(t, []byte("not json"))
	h.publish(t, []byte(`{"ticker":"AAA","price":5}`))
	h.publish(t, encode(t, model.Tick{InstrumentID: "AAA", Value: 7, ObservedAt: 2000}))

	require.Eventually(t, func() bool { return f.Stats().Persisted == 1 }, 2*time.Second, 5*time.Millisecond)
	stats := f.Stats()
	assert.Equal(t, int64(3), stats.Received)
	assert.Equal(t, int64(2), stats.Dropped)
	assert.Equal(t, [][2]int64{{2000, 7}}, srv.Samples("AAA"))

	select {
	case err := <-errc:
		t.Fatalf("filler stopped on malformed payload: %v", err)
	default:
	}
}

func TestFiller_AppendFailureStops(t *testing.T) {
	h := newHarness(t)
	sink, srv := newWarmSink()
	f := New(Config{Channel: "stocks", Instruments: []string{"AAA"}}, sink, h.bus, nil, nil)

	cancel, errc := h.start(t, f)
	defer cancel()

	boom := errors.New("connection refused")
	srv.FailWith(boom)
	h.publish(t, encode(t, model.Tick{InstrumentID: "AAA", Value: 1, ObservedAt: 1}))

	err := wait(t, errc)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), f.Stats().Errors)
}

func TestFiller_BootstrapFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	sink, srv := newWarmSink()
	boom := errors.New("connection refused")
	srv.FailWith(boom)
	f := New(Config{Channel: "stocks", Instruments: []string{"AAA"}}, sink, h.bus, nil, nil)

	err := f.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.Zero(t, h.mr.PubSubNumSub("stocks")["stocks"], "must not subscribe after failed bootstrap")
}

func TestFiller_BootstrapIsIdempotent(t *testing.T) {
	h := newHarness(t)
	sink, srv := newWarmSink()
	cfg := Config{Channel: "stocks", Instruments: []string{"AAA", "BBB"}}

	for i := 0; i < 2; i++ {
		f := New(cfg, sink, h.bus, nil, nil)
		cancel, errc := h.start(t, f)
		cancel()
		require.NoError(t, wait(t, errc))
		require.Eventually(t, func() bool {
			return h.mr.PubSubNumSub("stocks")["stocks"] == 0
		}, 2*time.Second, 5*time.Millisecond)
	}

	creates := 0
	for _, c := range srv.Commands() {
		if c == "TS.CREATE" {
			creates++
		}
	}
	assert.Equal(t, 2, creates)
}

func TestFiller_SinksAreIndependent(t *testing.T) {
	h := newHarness(t)
	warmSink, srv := newWarmSink()
	db := coldtest.NewDB()
	coldSink := ColdSink{Store: cold.NewStore(db, "prices", "tickers", nil)}
	cfg := Config{Channel: "stocks", Instruments: []string{"AAA"}}

	wf := New(cfg, warmSink, h.bus, nil, nil)
	cf := New(cfg, coldSink, h.bus, nil, nil)
	cancelWarm, warmErr := h.start(t, wf)
	defer cancelWarm()
	cancelCold, coldErr := h.start(t, cf)
	defer cancelCold()
	require.Eventually(t, func() bool {
		return h.mr.PubSubNumSub("stocks")["stocks"] == 2
	}, 2*time.Second, 5*time.Millisecond)

	// The cold store goes down; the warm filler keeps going.
	db.FailWith(errors.New("timescale down"))
	h.publish(t, encode(t, model.Tick{InstrumentID: "AAA", Value: 3, ObservedAt: 3000}))

	require.Error(t, wait(t, coldErr))
	require.Eventually(t, func() bool { return wf.Stats().Persisted == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, [][2]int64{{3000, 3}}, srv.Samples("AAA"))

	select {
	case err := <-warmErr:
		t.Fatalf("warm filler stopped: %v", err)
	default:
	}
}
