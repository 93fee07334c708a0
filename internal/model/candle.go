package model

import (
	"time"
)

// Candle represents one OHLCV bar. Times are epoch milliseconds.
type Candle struct {
	OpenTime  int64   `json:"open_time" db:"open_time"`
	CloseTime int64   `json:"close_time" db:"close_time"`
	Open      float64 `json:"open" db:"open"`
	High      float64 `json:"high" db:"high"`
	Low       float64 `json:"low" db:"low"`
	Close     float64 `json:"close" db:"close"`
	Volume    float64 `json:"volume" db:"volume"`
}

// OpenAt returns the open time as a time.Time
func (c Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime)
}

// CloseAt returns the close time as a time.Time
func (c Candle) CloseAt() time.Time {
	return time.UnixMilli(c.CloseTime)
}

// CandleQuery identifies a candle series in storage and caches
type CandleQuery struct {
	Symbol    string `json:"symbol" form:"symbol" binding:"required"`
	Interval  string `json:"interval" form:"interval" binding:"required"`
	StartTime int64  `json:"start_time" form:"start_time"`
	EndTime   int64  `json:"end_time,omitempty" form:"end_time"`
}

// Closes extracts close prices, the input of the indicator functions
func Closes(candles []Candle) []float64 {
	values := make([]float64, len(candles))
	for i, c := range candles {
		values[i] = c.Close
	}
	return values
}
