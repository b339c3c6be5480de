package reader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/tickstream/internal/cold"
	"github.com/rickgao/tickstream/internal/cold/coldtest"
	"github.com/rickgao/tickstream/internal/filler"
	"github.com/rickgao/tickstream/internal/model"
	"github.com/rickgao/tickstream/internal/pricegen"
	"github.com/rickgao/tickstream/internal/publisher"
	"github.com/rickgao/tickstream/internal/warm"
	"github.com/rickgao/tickstream/internal/warm/warmtest"
)

func TestPipeline_EndToEnd(t *testing.T) {
	b, mr := newBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := warmtest.NewServer()
	warmStore := warm.NewStore(ts, warm.SeriesOptions{
		Retention:       60 * time.Second,
		DuplicatePolicy: warm.PolicyLast,
	}, nil)
	db := coldtest.NewDB()
	coldStore := cold.NewStore(db, "prices", "tickers", nil)

	cfg := filler.Config{Channel: "stocks", Instruments: []string{"AAA"}}
	wf := filler.New(cfg, filler.WarmSink{Store: warmStore}, b, nil, nil)
	cf := filler.New(cfg, filler.ColdSink{Store: coldStore}, b, nil, nil)
	go wf.Run(ctx)
	go cf.Run(ctx)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("stocks")["stocks"] == 2
	}, 2*time.Second, 5*time.Millisecond, "both fillers subscribed")

	info, err := warmStore.Info(ctx, "AAA")
	require.NoError(t, err)
	assert.Equal(t, int64(60000), info.RetentionMillis)
	assert.Equal(t, "last", info.DuplicatePolicy)

	seed := db.Rows("AAA")
	require.Len(t, seed, 1)
	assert.Equal(t, int64(0), seed[0].Price)
	assert.True(t, db.Registered("AAA"))

	pub := publisher.New(b, "stocks", nil, nil)
	require.NoError(t, pub.PublishTick(ctx, model.Tick{InstrumentID: "AAA", Value: 10, ObservedAt: 1000}))

	require.Eventually(t, func() bool {
		return wf.Stats().Persisted == 1 && cf.Stats().Persisted == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, [][2]int64{{1000, 10}}, ts.Samples("AAA"))
	rows := db.Rows("AAA")
	require.Len(t, rows, 2)
	assert.Equal(t, coldtest.Row{Ticker: "AAA", Price: 10, Ts: time.Unix(1000, 0).UTC()}, rows[1])

	svc := New(warmStore, coldStore, b, "stocks", pricegen.NewWalker(1))
	for i := 0; i < 20; i++ {
		got, err := svc.Latest(ctx, "AAA")
		require.NoError(t, err)
		assert.Contains(t, []int64{9, 11}, got)
	}
}

func TestPipeline_ColdFallbackBeforeWarmSeriesExists(t *testing.T) {
	ctx := context.Background()
	db := coldtest.NewDB()
	coldStore := cold.NewStore(db, "prices", "tickers", nil)
	db.Insert("AAA", 7, time.Unix(500, 0).UTC())

	warmStore := warm.NewStore(warmtest.NewServer(), warm.SeriesOptions{}, nil)
	svc := New(warmStore, coldStore, nil, "stocks", pricegen.NewWalker(3))

	got, err := svc.Latest(ctx, "AAA")
	require.NoError(t, err)
	assert.Contains(t, []int64{6, 8}, got)

	_, err = svc.Latest(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrInstrumentUnknown)
}
