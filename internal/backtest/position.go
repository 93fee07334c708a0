package backtest

import (
	"math"

	"github.com/yourorg/strategy-optimizer/internal/model"
	"github.com/yourorg/strategy-optimizer/internal/strategy"
)

// Position is the single open simulated position of a run
type Position struct {
	Type             model.PositionType
	EntryPrice       float64
	EntryTime        int64
	Notional         float64
	Quantity         float64
	LiquidationPrice float64
}

// TradeHook is called once for every closed trade
type TradeHook func(model.Trade)

// account is the mutable state of one run. It is never shared.
type account struct {
	costs    Costs
	leverage float64
	fund     float64
	position Position
	trades   int
	hook     TradeHook
}

func newAccount(costs Costs, leverage float64, hook TradeHook) *account {
	return &account{
		costs:    costs,
		leverage: leverage,
		fund:     costs.InitialFund,
		hook:     hook,
	}
}

// apply performs the transition for a signal at the given fill price
func (a *account) apply(sig strategy.Signal, price float64, ts int64) {
	switch sig {
	case strategy.SignalOpenLong:
		if a.position.Type == model.PositionNone {
			a.open(model.PositionLong, price, ts)
		}
	case strategy.SignalOpenShort:
		if a.position.Type == model.PositionNone {
			a.open(model.PositionShort, price, ts)
		}
	case strategy.SignalCloseLong:
		if a.position.Type == model.PositionLong {
			a.close(price, ts)
		}
	case strategy.SignalCloseShort:
		if a.position.Type == model.PositionShort {
			a.close(price, ts)
		}
	case strategy.SignalLongToShort:
		if a.position.Type == model.PositionLong {
			a.close(price, ts)
			if a.solvent() {
				a.open(model.PositionShort, price, ts)
			}
		}
	case strategy.SignalShortToLong:
		if a.position.Type == model.PositionShort {
			a.close(price, ts)
			if a.solvent() {
				a.open(model.PositionLong, price, ts)
			}
		}
	}
}

func (a *account) open(side model.PositionType, price float64, ts int64) {
	notional := a.fund * a.costs.allocation() * a.leverage
	a.fund -= notional * a.costs.FeeRate

	liq := price * (1 - 1/a.leverage + a.costs.LiquidationMargin)
	if side == model.PositionShort {
		liq = price * (1 + 1/a.leverage - a.costs.LiquidationMargin)
	}

	a.position = Position{
		Type:             side,
		EntryPrice:       price,
		EntryTime:        ts,
		Notional:         notional,
		Quantity:         notional / price,
		LiquidationPrice: liq,
	}
}

func (a *account) close(price float64, ts int64) {
	p := a.position

	pnl := (price - p.EntryPrice) * p.Quantity
	if p.Type == model.PositionShort {
		pnl = -pnl
	}
	notional := p.Notional + pnl
	fee := notional * a.costs.FeeRate
	funding := a.costs.fundingFee(notional, p.EntryTime, ts)

	// Longs pay funding and shorts receive it.
	a.fund += pnl - fee
	if p.Type == model.PositionLong {
		a.fund -= funding
	} else {
		a.fund += funding
	}
	a.trades++

	if a.hook != nil {
		a.hook(model.Trade{
			PositionType: p.Type,
			EntryPrice:   p.EntryPrice,
			ExitPrice:    price,
			EntryTime:    p.EntryTime,
			ExitTime:     ts,
			Quantity:     p.Quantity,
			PnL:          pnl,
			Fee:          fee,
			FundingFee:   funding,
			Fund:         a.fund,
		})
	}

	a.position = Position{}
}

// liquidated checks the bar's extremes against the liquidation price
func (a *account) liquidated(c model.Candle) bool {
	switch a.position.Type {
	case model.PositionLong:
		return c.Low < a.position.LiquidationPrice
	case model.PositionShort:
		return c.High > a.position.LiquidationPrice
	default:
		return false
	}
}

func (a *account) solvent() bool {
	return a.fund > 0 && !math.IsInf(a.fund, 0) && !math.IsNaN(a.fund)
}
