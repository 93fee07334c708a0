package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

func newMarketData(c CandleCache, repo CandleRepository, src KlineSource, backtestMode bool, now time.Time) *MarketDataService {
	s := NewMarketDataService(c, repo, src, MarketDataOptions{
		KlineLimit:   1500,
		FollowToNow:  true,
		BacktestMode: backtestMode,
	}, zap.NewNop())
	s.now = func() time.Time { return now }
	return s
}

func TestGetCandlesDownloadsAndStores(t *testing.T) {
	src := &fakeKlineSource{candles: hourlyCandles(0, 1, 2, 3)}
	repo := &fakeCandleRepo{}
	cache := newFakeCandleCache()
	s := newMarketData(cache, repo, src, false, time.UnixMilli(10*hour))

	got, err := s.GetCandles(context.Background(), model.CandleQuery{Symbol: " btcusdt ", Interval: "1h"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, []int64{0}, src.starts)
	require.Len(t, repo.upserts, 1)
	assert.Len(t, repo.upserts[0], 3)
	assert.Equal(t, 1, cache.sets)

	cached, ok, _ := cache.Get(context.Background(), model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"})
	assert.True(t, ok, "symbol is normalized before caching")
	assert.Len(t, cached, 3)
}

func TestGetCandlesServesFreshCache(t *testing.T) {
	cache := newFakeCandleCache()
	cs := hourlyCandles(0, 1, 2, 3)
	require.NoError(t, cache.Set(context.Background(), model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"}, cs, 0))

	src := &fakeKlineSource{}
	// the last bar closes at 3h-1, so the cache is fresh at 2h
	s := newMarketData(cache, &fakeCandleRepo{}, src, false, time.UnixMilli(2*hour))

	got, err := s.GetCandles(context.Background(), model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"})
	require.NoError(t, err)
	assert.Equal(t, cs, got)
	assert.Empty(t, src.starts, "no download while the cache is fresh")
}

func TestGetCandlesRefreshesStaleCache(t *testing.T) {
	cache := newFakeCandleCache()
	require.NoError(t, cache.Set(context.Background(), model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"}, hourlyCandles(0, 1, 2), 0))

	repo := &fakeCandleRepo{stored: hourlyCandles(0, 1, 2)}
	src := &fakeKlineSource{candles: hourlyCandles(0, 1, 2.5, 3, 4)}
	s := newMarketData(cache, repo, src, false, time.UnixMilli(10*hour))

	got, err := s.GetCandles(context.Background(), model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, []int64{hour}, src.starts, "refetch starts at the last stored bar")
	assert.Equal(t, 2.5, got[1].Open, "downloaded bars replace stored ones")
}

func TestGetCandlesBacktestModeReusesStored(t *testing.T) {
	repo := &fakeCandleRepo{stored: hourlyCandles(0, 1, 2, 3)}
	src := &fakeKlineSource{candles: hourlyCandles(0, 1, 2, 3, 4, 5)}
	s := newMarketData(nil, repo, src, true, time.UnixMilli(100*hour))

	got, err := s.GetCandles(context.Background(), model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Empty(t, src.starts)
}

func TestGetCandlesTrimsEnd(t *testing.T) {
	src := &fakeKlineSource{candles: hourlyCandles(0, 1, 2, 3, 4)}
	s := newMarketData(nil, nil, src, false, time.UnixMilli(10*hour))

	got, err := s.GetCandles(context.Background(), model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h", EndTime: 2 * hour})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestGetCandlesErrors(t *testing.T) {
	s := newMarketData(nil, nil, &fakeKlineSource{}, false, time.Now())
	ctx := context.Background()

	_, err := s.GetCandles(ctx, model.CandleQuery{Interval: "1h"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.GetCandles(ctx, model.CandleQuery{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.GetCandles(ctx, model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h", StartTime: 10, EndTime: 5})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = s.GetCandles(ctx, model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"})
	assert.ErrorIs(t, err, ErrNoCandles)
}

func TestMergeCandles(t *testing.T) {
	a := hourlyCandles(0, 1, 2, 3)
	b := hourlyCandles(2*hour, 30, 40)
	merged := mergeCandles(a, b)
	require.Len(t, merged, 4)
	assert.Equal(t, 2.0, merged[1].Open)
	assert.Equal(t, 30.0, merged[2].Open)
	assert.Equal(t, 40.0, merged[3].Open)
}
