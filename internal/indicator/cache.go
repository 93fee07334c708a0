package indicator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

var (
	// ErrPeriodNotCached is returned when a series for a period was never built
	ErrPeriodNotCached = errors.New("indicator period not cached")
	// ErrInvalidPeriod is returned for periods below 1
	ErrInvalidPeriod = errors.New("indicator period must be >= 1")
)

// Series is an indicator sequence aligned index-for-index with a candle series.
// Entries before Offset are the warm-up window and carry no value.
type Series struct {
	values []float64
	offset int
	length int
}

// NewSeries pads computed values with a leading warm-up window so that the
// series has the given length.
func NewSeries(length int, computed []float64) (Series, error) {
	if len(computed) > length {
		return Series{}, fmt.Errorf("indicator produced %d values for %d inputs", len(computed), length)
	}
	return Series{values: computed, offset: length - len(computed), length: length}, nil
}

// At returns the value at candle index i. ok is false inside the warm-up
// window, out of range, or when the stored value is not finite.
func (s Series) At(i int) (v float64, ok bool) {
	if i < s.offset || i >= s.length {
		return 0, false
	}
	v = s.values[i-s.offset]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Len returns the aligned length of the series
func (s Series) Len() int { return s.length }

// Offset returns the index of the first defined value
func (s Series) Offset() int { return s.offset }

// Cache holds one Series per period. It is built once and read concurrently.
type Cache struct {
	series    map[int]Series
	length    int
	maxPeriod int
}

// BuildCache computes fn over the candle closes for every period
func BuildCache(ctx context.Context, candles []model.Candle, periods []int, fn Func) (*Cache, error) {
	if len(candles) == 0 {
		return nil, errors.New("cannot build indicator cache from an empty candle series")
	}
	if fn == nil {
		fn = RSI
	}

	closes := model.Closes(candles)
	c := &Cache{
		series: make(map[int]Series, len(periods)),
		length: len(candles),
	}

	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if period < 1 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidPeriod, period)
		}
		if _, exists := c.series[period]; exists {
			continue
		}

		s, err := NewSeries(len(closes), fn(period, closes))
		if err != nil {
			return nil, fmt.Errorf("period %d: %w", period, err)
		}
		c.series[period] = s
		if period > c.maxPeriod {
			c.maxPeriod = period
		}
	}

	return c, nil
}

// Get returns the series for a period
func (c *Cache) Get(period int) (Series, error) {
	s, ok := c.series[period]
	if !ok {
		return Series{}, fmt.Errorf("%w: %d", ErrPeriodNotCached, period)
	}
	return s, nil
}

// MaxPeriod is the largest cached period, the warm-up shared by every run
func (c *Cache) MaxPeriod() int { return c.maxPeriod }

// Len returns the candle count the cache is aligned with
func (c *Cache) Len() int { return c.length }

// Periods returns the cached periods in ascending order
func (c *Cache) Periods() []int {
	periods := make([]int, 0, len(c.series))
	for p := range c.series {
		periods = append(periods, p)
	}
	sort.Ints(periods)
	return periods
}

// PeriodRange expands min..max by step into a list of periods
func PeriodRange(min, max, step int) []int {
	if step < 1 || min > max {
		return nil
	}
	periods := make([]int, 0, (max-min)/step+1)
	for p := min; p <= max; p += step {
		periods = append(periods, p)
	}
	return periods
}
