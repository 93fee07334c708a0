package backtest

import (
	"fmt"
	"math"
	"time"
)

const (
	// DefaultInitialFund is the simulated starting balance in quote currency
	DefaultInitialFund = 100.0
	// DefaultFeeRate is the taker fee charged on notional at entry and exit (0.05%)
	DefaultFeeRate = 0.0005
	// DefaultFundingRate is charged on notional once per funding interval (0.01%)
	DefaultFundingRate = 0.0001
	// DefaultFundingInterval is the perpetual futures funding period
	DefaultFundingInterval = 8 * time.Hour
	// DefaultOrderAmountPercent is the share of the fund committed to a position
	DefaultOrderAmountPercent = 100.0
	// DefaultOrderReservePercent of the fund stays unallocated on every order
	// to absorb fee and price drift. Empirically calibrated.
	DefaultOrderReservePercent = 1.0
	// DefaultLiquidationMargin moves the theoretical liquidation price towards
	// the entry by this fraction of it. Empirically calibrated.
	DefaultLiquidationMargin = 0.01
)

// Costs holds the account and fee model of a simulation
type Costs struct {
	InitialFund         float64       `json:"initial_fund" mapstructure:"initialFund"`
	FeeRate             float64       `json:"fee_rate" mapstructure:"feeRate"`
	FundingRate         float64       `json:"funding_rate" mapstructure:"fundingRate"`
	FundingInterval     time.Duration `json:"funding_interval" mapstructure:"fundingInterval"`
	OrderAmountPercent  float64       `json:"order_amount_percent" mapstructure:"orderAmountPercent"`
	OrderReservePercent float64       `json:"order_reserve_percent" mapstructure:"orderReservePercent"`
	LiquidationMargin   float64       `json:"liquidation_margin" mapstructure:"liquidationMargin"`
}

// DefaultCosts returns the calibrated default cost model
func DefaultCosts() Costs {
	return Costs{
		InitialFund:         DefaultInitialFund,
		FeeRate:             DefaultFeeRate,
		FundingRate:         DefaultFundingRate,
		FundingInterval:     DefaultFundingInterval,
		OrderAmountPercent:  DefaultOrderAmountPercent,
		OrderReservePercent: DefaultOrderReservePercent,
		LiquidationMargin:   DefaultLiquidationMargin,
	}
}

// Validate rejects cost models that cannot produce meaningful numbers
func (c Costs) Validate() error {
	for name, v := range map[string]float64{
		"initial fund":          c.InitialFund,
		"fee rate":              c.FeeRate,
		"funding rate":          c.FundingRate,
		"order amount percent":  c.OrderAmountPercent,
		"order reserve percent": c.OrderReservePercent,
		"liquidation margin":    c.LiquidationMargin,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidCosts, name)
		}
	}
	if c.InitialFund <= 0 {
		return fmt.Errorf("%w: initial fund must be > 0", ErrInvalidCosts)
	}
	if c.FeeRate < 0 || c.FeeRate >= 1 {
		return fmt.Errorf("%w: fee rate must be in [0, 1)", ErrInvalidCosts)
	}
	if c.FundingInterval <= 0 {
		return fmt.Errorf("%w: funding interval must be > 0", ErrInvalidCosts)
	}
	if c.allocation() <= 0 || c.allocation() > 1 {
		return fmt.Errorf("%w: order amount minus reserve must be in (0, 100] percent", ErrInvalidCosts)
	}
	if c.LiquidationMargin < 0 || c.LiquidationMargin >= 1 {
		return fmt.Errorf("%w: liquidation margin must be in [0, 1)", ErrInvalidCosts)
	}
	return nil
}

// allocation is the fraction of the fund committed per order
func (c Costs) allocation() float64 {
	return (c.OrderAmountPercent - c.OrderReservePercent) / 100
}

// fundingFee is charged once per whole funding interval the position was held
func (c Costs) fundingFee(notional float64, openTime, closeTime int64) float64 {
	held := time.Duration(closeTime-openTime) * time.Millisecond
	periods := math.Floor(float64(held) / float64(c.FundingInterval))
	if periods < 0 {
		periods = 0
	}
	return notional * c.FundingRate * periods
}
