package publisher

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
	"github.com/rickgao/tickstream/internal/model"
)

// recordingBus records publishes and fails the configured topics.
type recordingBus struct {
	mu        sync.Mutex
	published map[string][]byte
	fail      map[string]error
	delay     map[string]time.Duration
}

func (b *recordingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if d := b.delay[topic]; d > 0 {
		time.Sleep(d)
	}
	if err := b.fail[topic]; err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][]byte)
	}
	b.published[topic] = payload
	return nil
}

func TestPublisher_Topics(t *testing.T) {
	p := New(&recordingBus{}, "stocks", nil, nil)

	assert.Equal(t, []string{"stocks.AAA", "stocks"}, p.Topics("AAA"))
}

func TestPublisher_PublishTick_BothTopicsGetSameEncoding(t *testing.T) {
	rb := &recordingBus{}
	p := New(rb, "stocks", nil, nil)

	tick := model.Tick{InstrumentID: "AAA", Value: 10, ObservedAt: 1000}
	require.NoError(t, p.PublishTick(context.Background(), tick))

	want, _ := tick.Encode()
	assert.Equal(t, want, rb.published["stocks.AAA"])
	assert.Equal(t, want, rb.published["stocks"])
}

func TestPublisher_PublishTick_FailureDoesNotSkipSibling(t *testing.T) {
	boom := errors.New("connection reset")
	rb := &recordingBus{
		fail:  map[string]error{"stocks.AAA": boom},
		delay: map[string]time.Duration{"stocks": 20 * time.Millisecond},
	}
	p := New(rb, "stocks", nil, nil)

	err := p.PublishTick(context.Background(), model.Tick{InstrumentID: "AAA", Value: 1, ObservedAt: 1})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, rb.published, "stocks", "aggregate publish must still happen")
	assert.NotContains(t, rb.published, "stocks.AAA")
}

func TestPublisher_PublishTick_AggregateFailure(t *testing.T) {
	boom := errors.New("aggregate down")
	rb := &recordingBus{fail: map[string]error{"stocks": boom}}
	p := New(rb, "stocks", nil, nil)

	err := p.PublishTick(context.Background(), model.Tick{InstrumentID: "BBB", Value: 1, ObservedAt: 1})

	require.ErrorIs(t, err, boom)
	assert.Contains(t, rb.published, "stocks.BBB")
}

func TestPublisher_PublishTick_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	b := bus.New(rdb)
	defer b.Close()

	ctx := context.Background()
	perInstrument, err := b.Subscribe(ctx, "stocks.AAA")
	require.NoError(t, err)
	aggregate, err := b.Subscribe(ctx, "stocks")
	require.NoError(t, err)

	p := New(b, "stocks", nil, nil)
	tick := model.Tick{InstrumentID: "AAA", Value: 10, ObservedAt: 1000}
	require.NoError(t, p.PublishTick(ctx, tick))

	want, _ := tick.Encode()
	for _, sub := range []*bus.Subscription{perInstrument, aggregate} {
		select {
		case got := <-sub.Messages():
			assert.Equal(t, want, got, "topic %s", sub.Topic())
		case <-time.After(2 * time.Second):
			t.Fatalf("no message on %s", sub.Topic())
		}
	}
}

func TestPublisher_SequentialOrderPerInstrument(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	b := bus.New(rdb)
	defer b.Close()

	ctx := context.Background()
	sub, err := b.Subscribe(ctx, "stocks")
	require.NoError(t, err)

	p := New(b, "stocks", nil, nil)
	for ts := int64(1); ts <= 10; ts++ {
		require.NoError(t, p.PublishTick(ctx, model.Tick{InstrumentID: "AAA", Value: ts, ObservedAt: ts}))
	}

	var last int64
	for i := 0; i < 10; i++ {
		select {
		case payload := <-sub.Messages():
			tick, err := model.DecodeTick(payload)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, tick.ObservedAt, last)
			last = tick.ObservedAt
		case <-time.After(2 * time.Second):
			t.Fatal("timed out")
		}
	}
	assert.Equal(t, int64(10), last)
}
