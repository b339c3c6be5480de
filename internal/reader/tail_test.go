package reader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tickstream/internal/bus"
)

func newBus(t *testing.T) (*bus.Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	b := bus.New(rdb)
	t.Cleanup(func() { b.Close() })
	return b, mr
}

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) sink(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, string(p))
	return nil
}

func (c *collector) got() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func waitSubscribed(t *testing.T, mr *miniredis.Miniredis, topic string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(topic)[topic] > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTail_PerInstrument(t *testing.T) {
	b, mr := newBus(t)
	s := New(&fakeWarm{}, &fakeCold{}, b, "stocks", nil)
	ctx, cancel := context.WithCancel(context.Background())

	var c collector
	errc := make(chan error, 1)
	go func() { errc <- s.Tail(ctx, "AAA", c.sink) }()
	waitSubscribed(t, mr, "stocks.AAA")

	require.NoError(t, b.Publish(ctx, "stocks.BBB", []byte("bbb")))
	require.NoError(t, b.Publish(ctx, "stocks.AAA", []byte("a1")))
	require.NoError(t, b.Publish(ctx, "stocks.AAA", []byte("a2")))

	require.Eventually(t, func() bool { return len(c.got()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a1", "a2"}, c.got())

	cancel()
	require.NoError(t, <-errc)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("stocks.AAA")["stocks.AAA"] == 0
	}, 2*time.Second, 5*time.Millisecond, "subscription must be released")
}

func TestTail_AggregateWhenNoInstrument(t *testing.T) {
	b, mr := newBus(t)
	s := New(&fakeWarm{}, &fakeCold{}, b, "stocks", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var c collector
	go s.Tail(ctx, "", c.sink)
	waitSubscribed(t, mr, "stocks")

	require.NoError(t, b.Publish(ctx, "stocks", []byte("all")))
	require.Eventually(t, func() bool { return len(c.got()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestTail_SinkErrorEndsTail(t *testing.T) {
	b, mr := newBus(t)
	s := New(&fakeWarm{}, &fakeCold{}, b, "stocks", nil)
	ctx := context.Background()
	gone := errors.New("peer gone")

	errc := make(chan error, 1)
	go func() { errc <- s.Tail(ctx, "AAA", func([]byte) error { return gone }) }()
	waitSubscribed(t, mr, "stocks.AAA")

	require.NoError(t, b.Publish(ctx, "stocks.AAA", []byte("x")))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, gone)
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not end")
	}
}

func TestTail_BusDown(t *testing.T) {
	b, mr := newBus(t)
	mr.Close()
	s := New(&fakeWarm{}, &fakeCold{}, b, "stocks", nil)

	err := s.Tail(context.Background(), "AAA", func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
