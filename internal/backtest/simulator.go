package backtest

import (
	"errors"
	"fmt"
	"math"

	"github.com/yourorg/strategy-optimizer/internal/indicator"
	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
)

var (
	// ErrEmptySeries is returned when no candles are supplied
	ErrEmptySeries = errors.New("candle series is empty")
	// ErrInsufficientData is returned when the series does not extend past the warm-up window
	ErrInsufficientData = errors.New("candle series is shorter than the indicator warm-up")
	// ErrInvalidCandle is returned for candles with non-finite or non-positive prices
	ErrInvalidCandle = errors.New("invalid candle")
	// ErrInvalidParameters is returned for parameter sets that cannot be simulated
	ErrInvalidParameters = errors.New("invalid strategy parameters")
	// ErrInvalidCosts is returned for an unusable cost model
	ErrInvalidCosts = errors.New("invalid cost model")
)

// Simulator replays one strategy variant over a fixed candle series. It holds
// only read-only state, so Run may be called from many goroutines at once.
type Simulator struct {
	candles []model.Candle
	cache   *indicator.Cache
	variant strategy.Variant
	costs   Costs
	start   int
}

// NewSimulator validates the inputs shared by every run. All runs start at
// the bar after the cache's largest period so that every parameter set is
// measured over the same window.
func NewSimulator(candles []model.Candle, cache *indicator.Cache, variant strategy.Variant, costs Costs) (*Simulator, error) {
	if len(candles) == 0 {
		return nil, ErrEmptySeries
	}
	if cache == nil {
		return nil, errors.New("indicator cache is required")
	}
	if cache.Len() != len(candles) {
		return nil, fmt.Errorf("indicator cache covers %d bars, candle series has %d", cache.Len(), len(candles))
	}
	if err := variant.Validate(); err != nil {
		return nil, err
	}
	if err := costs.Validate(); err != nil {
		return nil, err
	}

	start := cache.MaxPeriod() + 1
	if len(candles) <= start {
		return nil, fmt.Errorf("%w: %d candles, warm-up needs more than %d", ErrInsufficientData, len(candles), start)
	}

	for i, c := range candles {
		if !positiveFinite(c.Open) || !positiveFinite(c.High) || !positiveFinite(c.Low) {
			return nil, fmt.Errorf("%w at index %d (open time %d)", ErrInvalidCandle, i, c.OpenTime)
		}
	}

	return &Simulator{
		candles: candles,
		cache:   cache,
		variant: variant,
		costs:   costs,
		start:   start,
	}, nil
}

// Start is the first bar index a decision is made on
func (s *Simulator) Start() int { return s.start }

// Variant returns the strategy variant being simulated
func (s *Simulator) Variant() strategy.Variant { return s.variant }

// Run simulates one parameter set. A liquidated run is reported through
// result.Invalidated with a nil error; errors are reserved for bad input.
func (s *Simulator) Run(params model.Parameters, hook TradeHook) (model.BacktestResult, error) {
	if err := validateParameters(params); err != nil {
		return model.BacktestResult{}, err
	}
	series, err := s.cache.Get(params.RSIPeriod)
	if err != nil {
		return model.BacktestResult{}, err
	}

	th := strategy.ThresholdsOf(params)
	acct := newAccount(s.costs, params.Leverage, hook)

	for i := s.start; i < len(s.candles); i++ {
		bar := s.candles[i]

		// The decision only ever sees the previous bar's indicator value.
		if previous, ok := series.At(i - 1); ok {
			profit := strategy.UnrealizedProfit(acct.position.Type, acct.position.EntryPrice, bar.Open)
			sig := strategy.Evaluate(s.variant, acct.position.Type, previous, th, profit)
			acct.apply(sig, bar.Open, bar.OpenTime)
		}

		if !acct.solvent() || acct.liquidated(bar) {
			return model.BacktestResult{
				Parameters:   params,
				Invalidated:  true,
				LiquidatedAt: bar.OpenTime,
				Trades:       acct.trades,
			}, nil
		}
	}

	return model.BacktestResult{
		Parameters:       params,
		Fund:             acct.fund,
		PositionType:     acct.position.Type,
		StillHasPosition: acct.position.Type != model.PositionNone,
		Trades:           acct.trades,
	}, nil
}

func validateParameters(p model.Parameters) error {
	if p.RSIPeriod < 1 {
		return fmt.Errorf("%w: period %d", ErrInvalidParameters, p.RSIPeriod)
	}
	if !finite(p.UpperLevel) || !finite(p.LowerLevel) {
		return fmt.Errorf("%w: thresholds must be finite", ErrInvalidParameters)
	}
	if !positiveFinite(p.Leverage) {
		return fmt.Errorf("%w: leverage must be a positive number", ErrInvalidParameters)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positiveFinite(v float64) bool {
	return finite(v) && v > 0
}
