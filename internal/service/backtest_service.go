package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/backtest"
	"github.com/yourorg/strategy-optimizer/internal/indicator"
	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
)

// CandleProvider supplies candle series to the simulations
type CandleProvider interface {
	GetCandles(ctx context.Context, q model.CandleQuery) ([]model.Candle, error)
}

// BacktestRequest runs one parameter set
type BacktestRequest struct {
	Symbol     string           `json:"symbol" binding:"required"`
	Interval   string           `json:"interval" binding:"required"`
	StartTime  int64            `json:"start_time"`
	EndTime    int64            `json:"end_time"`
	Variant    string           `json:"variant"`
	Parameters model.Parameters `json:"parameters"`
	Costs      *backtest.Costs  `json:"costs,omitempty"`
	// Warmup overrides the bars skipped before the first decision. Replaying
	// a sweep result needs the sweep's largest period here.
	Warmup     int              `json:"warmup" binding:"gte=0"`
}

// BacktestResponse is the outcome of a single run with its trade log
type BacktestResponse struct {
	Variant string               `json:"variant"`
	Candles int                  `json:"candles"`
	Warmup  int                  `json:"warmup"`
	Result  model.BacktestResult `json:"result"`
	Trades  []model.Trade        `json:"trades"`
}

// BacktestDefaults fill in whatever a backtest request leaves out. They
// match the sweep defaults so a stored winner replays to the same result.
type BacktestDefaults struct {
	Start  func(now time.Time) (time.Time, error)
	Costs  backtest.Costs
	Warmup int
}

// BacktestService runs single simulations
type BacktestService struct {
	market   CandleProvider
	defaults BacktestDefaults
	logger   *zap.Logger
}

// NewBacktestService creates a new backtest service
func NewBacktestService(market CandleProvider, defaults BacktestDefaults, logger *zap.Logger) *BacktestService {
	return &BacktestService{
		market:   market,
		defaults: defaults,
		logger:   logger,
	}
}

// RunBacktest simulates one parameter set and returns every closed trade
func (s *BacktestService) RunBacktest(ctx context.Context, req *BacktestRequest) (*BacktestResponse, error) {
	variant, err := strategy.Lookup(req.Variant)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Parameters.RSIPeriod < 1 {
		return nil, fmt.Errorf("%w: rsi_period must be >= 1", ErrInvalidRequest)
	}
	if req.Warmup < 0 {
		return nil, fmt.Errorf("%w: warmup must be >= 0", ErrInvalidRequest)
	}

	costs := s.defaults.Costs
	if req.Costs != nil {
		costs = *req.Costs
	}

	warmup := req.Warmup
	if warmup == 0 {
		warmup = s.defaults.Warmup
	}
	periods := []int{req.Parameters.RSIPeriod}
	if warmup > req.Parameters.RSIPeriod {
		periods = append(periods, warmup)
	}

	startTime := req.StartTime
	if startTime == 0 && s.defaults.Start != nil {
		t, err := s.defaults.Start(time.Now())
		if err != nil {
			return nil, err
		}
		startTime = t.UnixMilli()
	}

	candles, err := s.market.GetCandles(ctx, model.CandleQuery{
		Symbol:    req.Symbol,
		Interval:  req.Interval,
		StartTime: startTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		return nil, err
	}

	// the series of the warm-up period only moves the start bar
	cache, err := indicator.BuildCache(ctx, candles, periods, nil)
	if err != nil {
		return nil, err
	}

	sim, err := backtest.NewSimulator(candles, cache, variant, costs)
	if err != nil {
		return nil, asRequestError(err)
	}

	trades := []model.Trade{}
	result, err := sim.Run(req.Parameters, backtest.Collect(&trades))
	if err != nil {
		return nil, asRequestError(err)
	}

	s.logger.Info("Backtest finished",
		zap.String("symbol", req.Symbol),
		zap.Stringer("parameters", req.Parameters),
		zap.Float64("fund", result.Fund),
		zap.Bool("invalidated", result.Invalidated),
		zap.Int("trades", result.Trades))

	return &BacktestResponse{
		Variant: variant.Name,
		Candles: len(candles),
		Warmup:  cache.MaxPeriod(),
		Result:  result,
		Trades:  trades,
	}, nil
}

// asRequestError marks simulator input errors as caller errors
func asRequestError(err error) error {
	for _, target := range []error{
		backtest.ErrInsufficientData,
		backtest.ErrInvalidParameters,
		backtest.ErrInvalidCosts,
		indicator.ErrPeriodNotCached,
	} {
		if errors.Is(err, target) {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}
	return err
}
