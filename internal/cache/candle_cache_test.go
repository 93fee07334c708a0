package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

func TestExpired(t *testing.T) {
	now := time.UnixMilli(10_000)
	series := []model.Candle{{OpenTime: 0, CloseTime: 4_999}, {OpenTime: 5_000, CloseTime: 9_999}}

	assert.True(t, Expired(nil, now, false))
	assert.True(t, Expired(nil, now, true))
	assert.True(t, Expired(series, now, false))
	assert.False(t, Expired(series, now, true), "backtest mode reuses stale data")
	assert.False(t, Expired(series, time.UnixMilli(9_999), false))
}

func TestKey(t *testing.T) {
	q := model.CandleQuery{Symbol: "btcusdt", Interval: "1h", StartTime: 42}
	assert.Equal(t, "candles:BTCUSDT:1h:42", Key("candles", q))
	assert.Equal(t, "BTCUSDT:1h:42", Key("", q))
}

func TestMemoryCandleCache(t *testing.T) {
	c := NewMemoryCandleCache()
	q := model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"}
	ctx := context.Background()

	_, ok, err := c.Get(ctx, q)
	require.NoError(t, err)
	assert.False(t, ok)

	series := []model.Candle{{OpenTime: 1, Close: 2}}
	require.NoError(t, c.Set(ctx, q, series, 0))

	got, ok, err := c.Get(ctx, q)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, series, got)
}

func TestRedisCandleCacheUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	c := NewRedisCandleCache(client, "candles", zap.NewNop())
	q := model.CandleQuery{Symbol: "BTCUSDT", Interval: "1h"}

	_, ok, err := c.Get(context.Background(), q)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(context.Background(), q, []model.Candle{{OpenTime: 1}}, time.Minute))
}
