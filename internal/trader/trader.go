// Package trader turns optimized parameters into live order plans. It does
// not talk to an exchange; callers supply the account state and execute the
// returned actions themselves.
package trader

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
)

// Side is an exchange order side
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ActionKind tells whether an order opens or closes exposure
type ActionKind string

const (
	ActionOpen  ActionKind = "OPEN"
	ActionClose ActionKind = "CLOSE"
)

// Action is one market order of a plan
type Action struct {
	Kind ActionKind `json:"kind"`
	Side Side       `json:"side"`
}

// LiveConfig is everything a live decision needs. It is passed explicitly
// on every call; nothing is kept between decisions. OrderAmountPercent is
// the share of the balance an opening order commits.
type LiveConfig struct {
	Symbol             string           `json:"symbol"`
	Parameters         model.Parameters `json:"parameters"`
	Variant            strategy.Variant `json:"variant"`
	OrderAmountPercent float64          `json:"order_amount_percent"`
}

// ErrInvalidQuantityInput is returned when an order size cannot be computed
var ErrInvalidQuantityInput = errors.New("invalid order quantity input")

// Decide evaluates the strategy for the live position using the indicator
// value of the last closed bar
func Decide(cfg LiveConfig, position model.PositionType, previous, entryPrice, price float64) strategy.Signal {
	profit := strategy.UnrealizedProfit(position, entryPrice, price)
	return strategy.Evaluate(cfg.Variant, position, previous, strategy.ThresholdsOf(cfg.Parameters), profit)
}

// Plan turns a signal into the ordered list of orders that executes it.
// Flips close the current position before opening the new one.
func Plan(sig strategy.Signal) []Action {
	switch sig {
	case strategy.SignalOpenLong:
		return []Action{{ActionOpen, SideBuy}}
	case strategy.SignalOpenShort:
		return []Action{{ActionOpen, SideSell}}
	case strategy.SignalCloseLong:
		return []Action{{ActionClose, SideSell}}
	case strategy.SignalCloseShort:
		return []Action{{ActionClose, SideBuy}}
	case strategy.SignalLongToShort:
		return []Action{{ActionClose, SideSell}, {ActionOpen, SideSell}}
	case strategy.SignalShortToLong:
		return []Action{{ActionClose, SideBuy}, {ActionOpen, SideBuy}}
	default:
		return nil
	}
}

// Reconcile plans the orders that move the exchange position to the
// position the latest backtest ended in
func Reconcile(exchange, target model.PositionType) []Action {
	switch {
	case exchange == target:
		return nil
	case exchange == model.PositionNone && target == model.PositionLong:
		return Plan(strategy.SignalOpenLong)
	case exchange == model.PositionNone && target == model.PositionShort:
		return Plan(strategy.SignalOpenShort)
	case exchange == model.PositionLong && target == model.PositionShort:
		return Plan(strategy.SignalLongToShort)
	case exchange == model.PositionShort && target == model.PositionLong:
		return Plan(strategy.SignalShortToLong)
	case exchange == model.PositionLong:
		return Plan(strategy.SignalCloseLong)
	default:
		return Plan(strategy.SignalCloseShort)
	}
}

// OrderQuantity sizes an opening order: balance × leverage / price, scaled by
// percent and rounded down to the symbol's lot step (e.g. "0.001").
func OrderQuantity(balance, leverage, price, percent float64, stepSize string) (decimal.Decimal, error) {
	if balance < 0 || leverage <= 0 || price <= 0 || percent <= 0 || percent > 100 {
		return decimal.Zero, fmt.Errorf("%w: balance=%g leverage=%g price=%g percent=%g",
			ErrInvalidQuantityInput, balance, leverage, price, percent)
	}
	step, err := decimal.NewFromString(stepSize)
	if err != nil || !step.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: step size %q", ErrInvalidQuantityInput, stepSize)
	}

	qty := decimal.NewFromFloat(balance).
		Mul(decimal.NewFromFloat(leverage)).
		Div(decimal.NewFromFloat(price)).
		Mul(decimal.NewFromFloat(percent)).
		Div(decimal.NewFromInt(100))

	return qty.Div(step).Floor().Mul(step), nil
}

// QuantityLadder returns order sizes for percent, percent-1, ... down to 1.
// Callers try them in order when the exchange rejects an order for
// insufficient margin.
func QuantityLadder(balance, leverage, price, percent float64, stepSize string) ([]decimal.Decimal, error) {
	var ladder []decimal.Decimal
	for p := percent; p >= 1; p-- {
		qty, err := OrderQuantity(balance, leverage, price, p, stepSize)
		if err != nil {
			return nil, err
		}
		if qty.IsZero() {
			break
		}
		ladder = append(ladder, qty)
	}
	return ladder, nil
}

// OrderLadder sizes the opening orders of a decision with the configured
// leverage and order amount percent
func (c LiveConfig) OrderLadder(balance, price float64, stepSize string) ([]decimal.Decimal, error) {
	ladder, err := QuantityLadder(balance, c.Parameters.Leverage, price, c.OrderAmountPercent, stepSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.Symbol, err)
	}
	return ladder, nil
}
