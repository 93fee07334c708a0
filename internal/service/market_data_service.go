package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/cache"
	"github.com/yourorg/strategy-optimizer/internal/model"
)

var (
	// ErrInvalidRequest marks errors caused by caller input
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoCandles is returned when no source has candles for a query
	ErrNoCandles = errors.New("no candles available")
)

// CandleCache is the fast path for candle series
type CandleCache interface {
	Get(ctx context.Context, q model.CandleQuery) ([]model.Candle, bool, error)
	Set(ctx context.Context, q model.CandleQuery, candles []model.Candle, ttl time.Duration) error
}

// CandleRepository persists downloaded candles
type CandleRepository interface {
	GetCandles(ctx context.Context, q model.CandleQuery) ([]model.Candle, error)
	UpsertCandles(ctx context.Context, symbol, interval string, candles []model.Candle) error
}

// KlineSource downloads candles from the exchange
type KlineSource interface {
	GetKlineHistory(ctx context.Context, symbol, interval string, startTime int64, limit int, followToNow bool) ([]model.Candle, error)
}

// MarketDataOptions tunes candle loading
type MarketDataOptions struct {
	KlineLimit  int
	FollowToNow bool
	// BacktestMode reuses any stored series without refreshing it
	BacktestMode bool
}

// MarketDataService loads candle series through cache, database and exchange
type MarketDataService struct {
	cache  CandleCache
	repo   CandleRepository
	source KlineSource
	opts   MarketDataOptions
	now    func() time.Time
	logger *zap.Logger
}

// NewMarketDataService creates a new market data service. cache and repo
// may be nil.
func NewMarketDataService(
	candleCache CandleCache,
	repo CandleRepository,
	source KlineSource,
	opts MarketDataOptions,
	logger *zap.Logger,
) *MarketDataService {
	return &MarketDataService{
		cache:  candleCache,
		repo:   repo,
		source: source,
		opts:   opts,
		now:    time.Now,
		logger: logger,
	}
}

// GetCandles returns the candle series for a query in ascending open time
func (s *MarketDataService) GetCandles(ctx context.Context, q model.CandleQuery) ([]model.Candle, error) {
	q.Symbol = candlesSymbol(q.Symbol)
	if q.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if q.Interval == "" {
		return nil, fmt.Errorf("%w: interval is required", ErrInvalidRequest)
	}
	if q.EndTime > 0 && q.EndTime < q.StartTime {
		return nil, fmt.Errorf("%w: end time before start time", ErrInvalidRequest)
	}

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, q)
		if err != nil {
			s.logger.Warn("Candle cache unavailable, falling back", zap.Error(err))
		} else if ok && !cache.Expired(cached, s.now(), s.opts.BacktestMode) {
			return trimEnd(cached, q.EndTime), nil
		}
	}

	var stored []model.Candle
	if s.repo != nil {
		var err error
		stored, err = s.repo.GetCandles(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to load stored candles: %w", err)
		}
	}

	candles := stored
	if len(stored) == 0 || !s.opts.BacktestMode {
		// Refetch from the last stored bar: it may have been stored while
		// still forming.
		start := q.StartTime
		if len(stored) > 0 {
			start = stored[len(stored)-1].OpenTime
		}

		fetched, err := s.source.GetKlineHistory(ctx, q.Symbol, q.Interval, start, s.opts.KlineLimit, s.opts.FollowToNow)
		if err != nil {
			return nil, fmt.Errorf("failed to download candles: %w", err)
		}

		if s.repo != nil && len(fetched) > 0 {
			if err := s.repo.UpsertCandles(ctx, q.Symbol, q.Interval, fetched); err != nil {
				return nil, fmt.Errorf("failed to store candles: %w", err)
			}
		}
		candles = mergeCandles(stored, fetched)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("%w for %s %s", ErrNoCandles, q.Symbol, q.Interval)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, q, candles, 0); err != nil {
			s.logger.Warn("Failed to cache candles", zap.Error(err))
		}
	}

	s.logger.Info("Loaded candles",
		zap.String("symbol", q.Symbol),
		zap.String("interval", q.Interval),
		zap.Int("stored", len(stored)),
		zap.Int("total", len(candles)))

	return trimEnd(candles, q.EndTime), nil
}

// mergeCandles combines two series by open time, preferring b on overlap
func mergeCandles(a, b []model.Candle) []model.Candle {
	if len(b) == 0 {
		return a
	}
	byOpen := make(map[int64]model.Candle, len(a)+len(b))
	for _, c := range a {
		byOpen[c.OpenTime] = c
	}
	for _, c := range b {
		byOpen[c.OpenTime] = c
	}

	merged := make([]model.Candle, 0, len(byOpen))
	for _, c := range byOpen {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].OpenTime < merged[j].OpenTime })
	return merged
}

func candlesSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func trimEnd(candles []model.Candle, end int64) []model.Candle {
	if end <= 0 {
		return candles
	}
	n := sort.Search(len(candles), func(i int) bool { return candles[i].OpenTime > end })
	return candles[:n]
}
