package service

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/yourorg/strategy-optimizer/internal/events"
	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/repository"
)

const hour = int64(3600 * 1000)

// hourlyCandles builds consecutive hourly bars starting at start with a
// close equal to the next bar's open.
func hourlyCandles(start int64, prices ...float64) []model.Candle {
	cs := make([]model.Candle, len(prices))
	for i, p := range prices {
		next := p
		if i+1 < len(prices) {
			next = prices[i+1]
		}
		cs[i] = model.Candle{
			OpenTime:  start + int64(i)*hour,
			CloseTime: start + int64(i+1)*hour - 1,
			Open:      p,
			High:      math.Max(p, next) * 1.001,
			Low:       math.Min(p, next) * 0.999,
			Close:     next,
			Volume:    1,
		}
	}
	return cs
}

// wave is a slow oscillation around 100 that gives RSI room to cross any
// reasonable threshold in both directions
func wave(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = 100 + 5*math.Sin(float64(i)/6)
	}
	return prices
}

type fakeCandleCache struct {
	mu      sync.Mutex
	candles map[string][]model.Candle
	sets    int
}

func newFakeCandleCache() *fakeCandleCache {
	return &fakeCandleCache{candles: make(map[string][]model.Candle)}
}

func (c *fakeCandleCache) Get(_ context.Context, q model.CandleQuery) ([]model.Candle, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.candles[q.Symbol+q.Interval]
	return cs, ok, nil
}

func (c *fakeCandleCache) Set(_ context.Context, q model.CandleQuery, candles []model.Candle, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candles[q.Symbol+q.Interval] = candles
	c.sets++
	return nil
}

type fakeCandleRepo struct {
	stored  []model.Candle
	upserts [][]model.Candle
}

func (r *fakeCandleRepo) GetCandles(_ context.Context, q model.CandleQuery) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range r.stored {
		if c.OpenTime >= q.StartTime {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCandleRepo) UpsertCandles(_ context.Context, _, _ string, candles []model.Candle) error {
	r.upserts = append(r.upserts, candles)
	return nil
}

type fakeKlineSource struct {
	candles []model.Candle
	starts  []int64
}

func (s *fakeKlineSource) GetKlineHistory(_ context.Context, _, _ string, startTime int64, _ int, _ bool) ([]model.Candle, error) {
	s.starts = append(s.starts, startTime)
	var out []model.Candle
	for _, c := range s.candles {
		if c.OpenTime >= startTime {
			out = append(out, c)
		}
	}
	return out, nil
}

type staticCandles []model.Candle

func (s staticCandles) GetCandles(context.Context, model.CandleQuery) ([]model.Candle, error) {
	return s, nil
}

type recordingCandles struct {
	candles []model.Candle
	queries []model.CandleQuery
}

func (r *recordingCandles) GetCandles(_ context.Context, q model.CandleQuery) ([]model.Candle, error) {
	r.queries = append(r.queries, q)
	return r.candles, nil
}

type fakeStore struct {
	mu      sync.Mutex
	records []model.OptimizationRecord
}

func (s *fakeStore) Create(_ context.Context, rec *model.OptimizationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = len(s.records) + 1
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeStore) GetLatest(_ context.Context, symbol, interval string) (*model.OptimizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if r := s.records[i]; r.Symbol == symbol && r.Interval == interval {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeStore) ListLatest(ctx context.Context, symbols []string, interval string) ([]model.OptimizationRecord, error) {
	var out []model.OptimizationRecord
	for _, symbol := range symbols {
		rec, err := s.GetLatest(ctx, symbol, interval)
		if err == nil {
			out = append(out, *rec)
		}
	}
	return out, nil
}

type fakePublisher struct {
	topics []string
	events []events.OptimizationCompleted
}

func (p *fakePublisher) PublishOptimizationCompleted(_ context.Context, topic string, ev events.OptimizationCompleted) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
	return nil
}

type fakeStepSizes map[string]string

func (f fakeStepSizes) GetStepSize(_ context.Context, symbol string) (string, error) {
	return f[symbol], nil
}
