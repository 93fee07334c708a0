package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/yourorg/strategy-optimizer/internal/indicator"
	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
	"github.com/yourorg/strategy-optimizer/internal/trader"
)

// StepSizeSource looks up the lot step of a symbol
type StepSizeSource interface {
	GetStepSize(ctx context.Context, symbol string) (string, error)
}

// DecisionRequest carries the live account state
type DecisionRequest struct {
	Symbol     string  `json:"symbol" binding:"required"`
	Interval   string  `json:"interval" binding:"required"`
	Position   string  `json:"position"`
	EntryPrice float64 `json:"entry_price" binding:"gte=0"`
	// Reconcile plans the orders that align the account with the position
	// the latest optimization ended in instead of evaluating the last bar
	Reconcile bool `json:"reconcile"`
	// Balance enables order sizing when positive
	Balance            float64 `json:"balance" binding:"gte=0"`
	OrderAmountPercent float64 `json:"order_amount_percent" binding:"gte=0,lte=100"`
	StepSize           string  `json:"step_size"`
}

// DecisionResponse is the order plan for the live account
type DecisionResponse struct {
	RunID      string            `json:"run_id"`
	Parameters model.Parameters  `json:"parameters"`
	Variant    string            `json:"variant"`
	Indicator  float64           `json:"indicator"`
	BarTime    int64             `json:"bar_time"`
	Price      float64           `json:"price"`
	Signal     string            `json:"signal"`
	Target     string            `json:"target"`
	Actions    []trader.Action   `json:"actions"`
	Quantities []decimal.Decimal `json:"quantities,omitempty"`
}

// DecisionOptions configure live decisions
type DecisionOptions struct {
	// Start resolves the first candle used to warm up the indicator
	Start              func(now time.Time) (time.Time, error)
	OrderAmountPercent float64
}

// DecisionService turns the latest optimization into a live order plan
type DecisionService struct {
	market  CandleProvider
	records OptimizationStore
	steps   StepSizeSource
	opts    DecisionOptions
	now     func() time.Time
	logger  *zap.Logger
}

// NewDecisionService creates a new decision service. steps may be nil, in
// which case requests must carry their own step size to be sized.
func NewDecisionService(
	market CandleProvider,
	records OptimizationStore,
	steps StepSizeSource,
	opts DecisionOptions,
	logger *zap.Logger,
) *DecisionService {
	return &DecisionService{
		market:  market,
		records: records,
		steps:   steps,
		opts:    opts,
		now:     time.Now,
		logger:  logger,
	}
}

// Decide plans the orders for the live account
func (s *DecisionService) Decide(ctx context.Context, req *DecisionRequest) (*DecisionResponse, error) {
	if s.records == nil {
		return nil, fmt.Errorf("%w: persistence is disabled", ErrInvalidRequest)
	}
	position, err := model.ParsePositionType(req.Position)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if position != model.PositionNone && req.EntryPrice <= 0 {
		return nil, fmt.Errorf("%w: entry_price is required with an open position", ErrInvalidRequest)
	}

	symbol := candlesSymbol(req.Symbol)
	rec, err := s.records.GetLatest(ctx, symbol, req.Interval)
	if err != nil {
		return nil, err
	}
	variant, err := strategy.Lookup(rec.Variant)
	if err != nil {
		return nil, err
	}
	params := rec.Parameters()

	now := s.now()
	var start int64
	if s.opts.Start != nil {
		t, err := s.opts.Start(now)
		if err != nil {
			return nil, err
		}
		start = t.UnixMilli()
	}

	candles, err := s.market.GetCandles(ctx, model.CandleQuery{
		Symbol:    symbol,
		Interval:  req.Interval,
		StartTime: start,
	})
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w for %s %s", ErrNoCandles, symbol, req.Interval)
	}

	price := candles[len(candles)-1].Close
	closed := closedCandles(candles, now)
	if len(closed) <= params.RSIPeriod {
		return nil, fmt.Errorf("%w: %d closed candles for period %d", ErrNoCandles, len(closed), params.RSIPeriod)
	}

	cache, err := indicator.BuildCache(ctx, closed, []int{params.RSIPeriod}, nil)
	if err != nil {
		return nil, err
	}
	series, err := cache.Get(params.RSIPeriod)
	if err != nil {
		return nil, err
	}
	last := len(closed) - 1
	previous, ok := series.At(last)
	if !ok {
		return nil, fmt.Errorf("%w: indicator undefined at the last closed bar", ErrNoCandles)
	}

	resp := &DecisionResponse{
		RunID:      rec.RunID,
		Parameters: params,
		Variant:    variant.Name,
		Indicator:  previous,
		BarTime:    closed[last].OpenTime,
		Price:      price,
	}

	percent := req.OrderAmountPercent
	if percent == 0 {
		percent = s.opts.OrderAmountPercent
	}
	cfg := trader.LiveConfig{
		Symbol:             symbol,
		Parameters:         params,
		Variant:            variant,
		OrderAmountPercent: percent,
	}

	if req.Reconcile {
		target, err := model.ParsePositionType(rec.PositionType)
		if err != nil {
			return nil, err
		}
		resp.Signal = strategy.SignalNone.String()
		resp.Target = target.String()
		resp.Actions = trader.Reconcile(position, target)
	} else {
		sig := trader.Decide(cfg, position, previous, req.EntryPrice, price)
		resp.Signal = sig.String()
		resp.Target = sig.Target(position).String()
		resp.Actions = trader.Plan(sig)
	}

	if req.Balance > 0 && opensPosition(resp.Actions) {
		resp.Quantities, err = s.quantities(ctx, cfg, req, price)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("Live decision",
		zap.String("symbol", symbol),
		zap.String("position", position.String()),
		zap.Float64("indicator", previous),
		zap.String("signal", resp.Signal),
		zap.Int("actions", len(resp.Actions)))

	return resp, nil
}

func (s *DecisionService) quantities(ctx context.Context, cfg trader.LiveConfig, req *DecisionRequest, price float64) ([]decimal.Decimal, error) {
	step := req.StepSize
	if step == "" {
		if s.steps == nil {
			return nil, fmt.Errorf("%w: step_size is required", ErrInvalidRequest)
		}
		var err error
		if step, err = s.steps.GetStepSize(ctx, cfg.Symbol); err != nil {
			return nil, fmt.Errorf("failed to get step size: %w", err)
		}
	}

	ladder, err := cfg.OrderLadder(req.Balance, price, step)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return ladder, nil
}

// closedCandles drops a trailing bar that has not closed yet
func closedCandles(candles []model.Candle, now time.Time) []model.Candle {
	if n := len(candles); n > 0 && candles[n-1].CloseTime >= now.UnixMilli() {
		return candles[:n-1]
	}
	return candles
}

func opensPosition(actions []trader.Action) bool {
	for _, a := range actions {
		if a.Kind == trader.ActionOpen {
			return true
		}
	}
	return false
}
