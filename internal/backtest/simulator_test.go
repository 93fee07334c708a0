package backtest

import (
	"bytes"
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/strategy-optimizer/internal/indicator"
	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
)

const hour = int64(time.Hour / time.Millisecond)

// scripted returns an indicator whose value at index i is script[i]
func scripted(script []float64) indicator.Func {
	return func(period int, values []float64) []float64 {
		if period >= len(script) {
			return nil
		}
		out := make([]float64, len(script)-period)
		copy(out, script[period:])
		return out
	}
}

type bar struct {
	open, high, low float64
}

func candles(step int64, bars ...bar) []model.Candle {
	out := make([]model.Candle, len(bars))
	for i, b := range bars {
		high, low := b.high, b.low
		if high == 0 {
			high = b.open
		}
		if low == 0 {
			low = b.open
		}
		out[i] = model.Candle{
			OpenTime:  int64(i) * step,
			CloseTime: int64(i+1)*step - 1,
			Open:      b.open,
			High:      high,
			Low:       low,
			Close:     b.open,
			Volume:    1,
		}
	}
	return out
}

func newSimulator(t *testing.T, cs []model.Candle, script []float64, periods []int, variant string) *Simulator {
	t.Helper()
	cache, err := indicator.BuildCache(context.Background(), cs, periods, scripted(script))
	require.NoError(t, err)
	v, err := strategy.Lookup(variant)
	require.NoError(t, err)
	sim, err := NewSimulator(cs, cache, v, DefaultCosts())
	require.NoError(t, err)
	return sim
}

func params(leverage float64) model.Parameters {
	return model.Parameters{RSIPeriod: 1, UpperLevel: 70, LowerLevel: 30, Leverage: leverage}
}

func TestRunSingleLongTrade(t *testing.T) {
	cs := candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100}, bar{open: 105}, bar{open: 110})
	sim := newSimulator(t, cs, []float64{math.NaN(), 80, 50, 20, 50}, []int{1}, "long-only")

	var trades []model.Trade
	res, err := sim.Run(params(1), Collect(&trades))
	require.NoError(t, err)

	assert.False(t, res.Invalidated)
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, model.PositionNone, res.PositionType)
	assert.False(t, res.StillHasPosition)
	// 100 - 0.0495 entry fee + 9.9 pnl - 0.05445 exit fee
	assert.InDelta(t, 109.79605, res.Fund, 1e-9)

	require.Len(t, trades, 1)
	assert.Equal(t, 100.0, trades[0].EntryPrice)
	assert.Equal(t, 110.0, trades[0].ExitPrice)
	assert.Equal(t, 2*hour, trades[0].EntryTime)
	assert.Equal(t, 4*hour, trades[0].ExitTime)
	assert.Zero(t, trades[0].FundingFee)
	assert.InDelta(t, res.Fund, trades[0].Fund, 1e-12)
}

func TestRunLongPaysFunding(t *testing.T) {
	cs := candles(8*hour, bar{open: 100}, bar{open: 100}, bar{open: 100}, bar{open: 105}, bar{open: 110})
	sim := newSimulator(t, cs, []float64{math.NaN(), 80, 50, 20, 50}, []int{1}, "long-only")

	res, err := sim.Run(params(1), nil)
	require.NoError(t, err)
	// two funding periods on 108.9 notional
	assert.InDelta(t, 109.79605-0.02178, res.Fund, 1e-9)
}

func TestRunShortTrade(t *testing.T) {
	script := []float64{math.NaN(), 20, 50, 80}

	cs := candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100}, bar{open: 90})
	sim := newSimulator(t, cs, script, []int{1}, "flat")
	res, err := sim.Run(params(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Trades)
	assert.InDelta(t, 109.79605, res.Fund, 1e-9)

	cs = candles(8*hour, bar{open: 100}, bar{open: 100}, bar{open: 100}, bar{open: 90})
	sim = newSimulator(t, cs, script, []int{1}, "flat")
	res, err = sim.Run(params(1), nil)
	require.NoError(t, err)
	// shorts receive one funding period
	assert.InDelta(t, 109.79605+0.01089, res.Fund, 1e-9)
}

func TestRunFlipKeepsPositionOpen(t *testing.T) {
	cs := candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100}, bar{open: 110})
	sim := newSimulator(t, cs, []float64{math.NaN(), 80, 20, 50}, []int{1}, "two-sided")

	res, err := sim.Run(params(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Trades)
	assert.Equal(t, model.PositionShort, res.PositionType)
	assert.True(t, res.StillHasPosition)
	// the flip pays both the exit and the new entry fee
	assert.Less(t, res.Fund, 109.79605)
	assert.Greater(t, res.Fund, 109.7)
}

func TestRunLiquidation(t *testing.T) {
	// leverage 5 liquidates a long opened at 100 below 81
	cs := candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100, low: 80}, bar{open: 100})
	sim := newSimulator(t, cs, []float64{math.NaN(), 80, 50, 50}, []int{1}, "long-only")

	res, err := sim.Run(params(5), nil)
	require.NoError(t, err)
	assert.True(t, res.Invalidated)
	assert.Equal(t, 2*hour, res.LiquidatedAt)
	assert.Zero(t, res.Fund)

	// the same bar survives at leverage 4 (liquidation at 76)
	res, err = sim.Run(params(4), nil)
	require.NoError(t, err)
	assert.False(t, res.Invalidated)
	assert.Equal(t, model.PositionLong, res.PositionType)
}

func TestRunShortLiquidation(t *testing.T) {
	cs := candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100, high: 120}, bar{open: 100})
	sim := newSimulator(t, cs, []float64{math.NaN(), 20, 50, 50}, []int{1}, "two-sided")

	res, err := sim.Run(params(5), nil)
	require.NoError(t, err)
	assert.True(t, res.Invalidated)
}

func TestRunRespectsSharedWarmup(t *testing.T) {
	cs := candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100}, bar{open: 100}, bar{open: 100}, bar{open: 100})
	// period 1 would open at bar 2, but period 3 pushes the start to bar 4
	sim := newSimulator(t, cs, []float64{math.NaN(), 80, 80, 50, 50, 50}, []int{1, 3}, "long-only")
	assert.Equal(t, 4, sim.Start())

	res, err := sim.Run(params(1), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Trades)
	assert.Equal(t, model.PositionNone, res.PositionType)
	assert.Equal(t, DefaultInitialFund, res.Fund)
}

func TestRunIsRepeatable(t *testing.T) {
	cs := randomWalk(rand.New(rand.NewSource(7)), 400)
	cache, err := indicator.BuildCache(context.Background(), cs, []int{7, 14}, nil)
	require.NoError(t, err)
	v, err := strategy.Lookup("two-sided")
	require.NoError(t, err)
	sim, err := NewSimulator(cs, cache, v, DefaultCosts())
	require.NoError(t, err)

	p := model.Parameters{RSIPeriod: 14, UpperLevel: 55, LowerLevel: 45, Leverage: 2}
	first, err := sim.Run(p, nil)
	require.NoError(t, err)
	second, err := sim.Run(p, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRunFundStaysPositive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cs := randomWalk(rng, 600)
	cache, err := indicator.BuildCache(context.Background(), cs, indicator.PeriodRange(2, 20, 3), nil)
	require.NoError(t, err)

	for _, name := range strategy.Names() {
		v, err := strategy.Lookup(name)
		require.NoError(t, err)
		sim, err := NewSimulator(cs, cache, v, DefaultCosts())
		require.NoError(t, err)

		for i := 0; i < 50; i++ {
			p := model.Parameters{
				RSIPeriod:  cache.Periods()[rng.Intn(len(cache.Periods()))],
				UpperLevel: 50 + rng.Float64()*40,
				LowerLevel: 10 + rng.Float64()*40,
				Leverage:   float64(1 + rng.Intn(20)),
			}
			res, err := sim.Run(p, nil)
			require.NoError(t, err)
			if !res.Invalidated {
				assert.Greater(t, res.Fund, 0.0, "%s %s", name, p)
			}
		}
	}
}

func TestNewSimulatorErrors(t *testing.T) {
	cs := candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100})
	cache, err := indicator.BuildCache(context.Background(), cs, []int{2}, scripted([]float64{0, 0, 50}))
	require.NoError(t, err)
	v, err := strategy.Lookup("")
	require.NoError(t, err)

	_, err = NewSimulator(nil, cache, v, DefaultCosts())
	assert.ErrorIs(t, err, ErrEmptySeries)

	_, err = NewSimulator(cs, cache, v, DefaultCosts())
	assert.ErrorIs(t, err, ErrInsufficientData)

	bad := DefaultCosts()
	bad.OrderReservePercent = 100
	_, err = NewSimulator(cs, cache, v, bad)
	assert.ErrorIs(t, err, ErrInvalidCosts)

	broken := append(candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100}), model.Candle{Open: math.NaN()})
	cache, err = indicator.BuildCache(context.Background(), broken, []int{1}, scripted([]float64{0, 0, 50, 50}))
	require.NoError(t, err)
	_, err = NewSimulator(broken, cache, v, DefaultCosts())
	assert.ErrorIs(t, err, ErrInvalidCandle)
}

func TestRunRejectsBadParameters(t *testing.T) {
	cs := candles(hour, bar{open: 100}, bar{open: 100}, bar{open: 100})
	sim := newSimulator(t, cs, []float64{math.NaN(), 50, 50}, []int{1}, "two-sided")

	_, err := sim.Run(model.Parameters{RSIPeriod: 1, UpperLevel: 70, LowerLevel: 30}, nil)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = sim.Run(model.Parameters{RSIPeriod: 1, UpperLevel: math.NaN(), LowerLevel: 30, Leverage: 1}, nil)
	assert.ErrorIs(t, err, ErrInvalidParameters)

	_, err = sim.Run(model.Parameters{RSIPeriod: 9, UpperLevel: 70, LowerLevel: 30, Leverage: 1}, nil)
	assert.ErrorIs(t, err, indicator.ErrPeriodNotCached)
}

func TestFormatTrade(t *testing.T) {
	tr := model.Trade{
		PositionType: model.PositionLong,
		EntryPrice:   100,
		ExitPrice:    110,
		EntryTime:    0,
		ExitTime:     2 * hour,
		Fund:         109.79605,
	}
	assert.Equal(t,
		"Fund: 109.80 LONG [100 ~ 110] [1970-01-01 00:00:00 ~ 1970-01-01 02:00:00] (2h0m0s)",
		FormatTrade(tr, time.UTC, false))

	assert.Contains(t, FormatTrade(tr, time.UTC, true), colorGreen)
	tr.ExitPrice = 90
	assert.Contains(t, FormatTrade(tr, time.UTC, true), colorRed)

	var buf bytes.Buffer
	WriterHook(&buf, time.UTC, false)(tr)
	assert.Contains(t, buf.String(), "[100 ~ 90]")
}

func randomWalk(rng *rand.Rand, n int) []model.Candle {
	out := make([]model.Candle, n)
	price := 100.0
	for i := range out {
		open := price
		price *= 1 + (rng.Float64()-0.5)*0.04
		high := math.Max(open, price) * (1 + rng.Float64()*0.01)
		low := math.Min(open, price) * (1 - rng.Float64()*0.01)
		out[i] = model.Candle{
			OpenTime:  int64(i) * hour,
			CloseTime: int64(i+1)*hour - 1,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    1,
		}
	}
	return out
}
