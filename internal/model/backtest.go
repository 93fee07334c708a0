package model

import (
	"time"
)

// BacktestResult is the terminal account state of one simulation run
type BacktestResult struct {
	Parameters       Parameters   `json:"parameters"`
	Fund             float64      `json:"fund"`
	PositionType     PositionType `json:"position_type"`
	StillHasPosition bool         `json:"still_has_position"`
	Trades           int          `json:"trades"`

	// Invalidated is set when the run was liquidated. Such a run has no
	// meaningful fund and must never be compared against valid results.
	Invalidated  bool  `json:"invalidated"`
	LiquidatedAt int64 `json:"liquidated_at,omitempty"`
}

// BestResult is the outcome of a parameter sweep
type BestResult struct {
	Found       bool           `json:"found"`
	Result      BacktestResult `json:"result"`
	Total       int            `json:"total"`
	Evaluated   int            `json:"evaluated"`
	Invalidated int            `json:"invalidated"`
}

// Trade is one closed simulated position
type Trade struct {
	PositionType PositionType `json:"position_type"`
	EntryPrice   float64      `json:"entry_price"`
	ExitPrice    float64      `json:"exit_price"`
	EntryTime    int64        `json:"entry_time"`
	ExitTime     int64        `json:"exit_time"`
	Quantity     float64      `json:"quantity"`
	PnL          float64      `json:"pnl"`
	Fee          float64      `json:"fee"`
	FundingFee   float64      `json:"funding_fee"`
	Fund         float64      `json:"fund"`
}

// Profitable reports whether the exit price beat the entry for the trade's side
func (t Trade) Profitable() bool {
	switch t.PositionType {
	case PositionLong:
		return t.ExitPrice > t.EntryPrice
	case PositionShort:
		return t.EntryPrice > t.ExitPrice
	default:
		return false
	}
}

// HoldingDuration returns the time between entry and exit
func (t Trade) HoldingDuration() time.Duration {
	return time.Duration(t.ExitTime-t.EntryTime) * time.Millisecond
}

// OptimizationRecord is a persisted sweep outcome for one symbol/interval
type OptimizationRecord struct {
	ID               int       `json:"id" db:"id"`
	RunID            string    `json:"run_id" db:"run_id"`
	Symbol           string    `json:"symbol" db:"symbol"`
	Interval         string    `json:"interval" db:"timeframe"`
	Variant          string    `json:"variant" db:"variant"`
	RSIPeriod        int       `json:"rsi_period" db:"rsi_period"`
	UpperLevel       float64   `json:"upper_level" db:"upper_level"`
	LowerLevel       float64   `json:"lower_level" db:"lower_level"`
	Leverage         float64   `json:"leverage" db:"leverage"`
	Fund             float64   `json:"fund" db:"fund"`
	PositionType     string    `json:"position_type" db:"position_type"`
	StillHasPosition bool      `json:"still_has_position" db:"still_has_position"`
	Evaluated        int       `json:"evaluated" db:"evaluated"`
	Invalidated      int       `json:"invalidated" db:"invalidated"`
	ReportLocation   string    `json:"report_location,omitempty" db:"report_location"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Parameters returns the strategy parameters stored in the record
func (r OptimizationRecord) Parameters() Parameters {
	return Parameters{
		RSIPeriod:  r.RSIPeriod,
		UpperLevel: r.UpperLevel,
		LowerLevel: r.LowerLevel,
		Leverage:   r.Leverage,
	}
}
