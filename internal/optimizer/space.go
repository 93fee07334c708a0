package optimizer

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/yourorg/strategy-optimizer/internal/model"
)

// ErrInvalidRange is returned for ranges that cannot be expanded
var ErrInvalidRange = errors.New("invalid parameter range")

var validate = validator.New()

// Range is an inclusive float grid axis
type Range struct {
	Min  float64 `json:"min" mapstructure:"min"`
	Max  float64 `json:"max" mapstructure:"max"`
	Step float64 `json:"step" mapstructure:"step"`
}

// IntRange is an inclusive integer grid axis
type IntRange struct {
	Min  int `json:"min" mapstructure:"min"`
	Max  int `json:"max" mapstructure:"max"`
	Step int `json:"step" mapstructure:"step"`
}

// SearchSpace describes the parameter grid. A nil Lower mirrors every upper
// level as 100 - upper. Samples > 0 switches from exhaustive enumeration to
// that many uniform draws (with replacement) from the grid.
type SearchSpace struct {
	Period   IntRange `json:"period" mapstructure:"period"`
	Upper    Range    `json:"upper" mapstructure:"upper"`
	Lower    *Range   `json:"lower,omitempty" mapstructure:"lower"`
	Leverage Range    `json:"leverage" mapstructure:"leverage"`
	Samples  int      `json:"samples" mapstructure:"samples" validate:"gte=0"`
}

// Values expands the range. min > max yields an empty axis.
func (r Range) Values() ([]float64, error) {
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsNaN(r.Step) ||
		math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0) || math.IsInf(r.Step, 0) {
		return nil, fmt.Errorf("%w: bounds must be finite", ErrInvalidRange)
	}
	if r.Min > r.Max {
		return nil, nil
	}
	if r.Min == r.Max {
		return []float64{r.Min}, nil
	}
	if r.Step <= 0 {
		return nil, fmt.Errorf("%w: step must be > 0 for %g..%g", ErrInvalidRange, r.Min, r.Max)
	}

	// Values are computed from the index, not accumulated, so 0.1 steps do
	// not drift past Max.
	n := int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
	values := make([]float64, n)
	for k := range values {
		values[k] = r.Min + float64(k)*r.Step
	}
	return values, nil
}

// Values expands the integer range. min > max yields an empty axis.
func (r IntRange) Values() ([]int, error) {
	if r.Min > r.Max {
		return nil, nil
	}
	if r.Min == r.Max {
		return []int{r.Min}, nil
	}
	if r.Step <= 0 {
		return nil, fmt.Errorf("%w: step must be > 0 for %d..%d", ErrInvalidRange, r.Min, r.Max)
	}
	values := make([]int, 0, (r.Max-r.Min)/r.Step+1)
	for v := r.Min; v <= r.Max; v += r.Step {
		values = append(values, v)
	}
	return values, nil
}

// Validate checks the space without expanding it
func (s SearchSpace) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	if s.Period.Min < 1 && s.Period.Min <= s.Period.Max {
		return fmt.Errorf("%w: period must be >= 1", ErrInvalidRange)
	}
	if s.Leverage.Min <= 0 && s.Leverage.Min <= s.Leverage.Max {
		return fmt.Errorf("%w: leverage must be > 0", ErrInvalidRange)
	}
	axes := []Range{s.Upper, s.Leverage}
	if s.Lower != nil {
		axes = append(axes, *s.Lower)
	}
	for _, r := range axes {
		if _, err := r.Values(); err != nil {
			return err
		}
	}
	_, err := s.Period.Values()
	return err
}

// Periods returns every period the space can produce, the set the
// indicator cache has to be built for.
func (s SearchSpace) Periods() ([]int, error) {
	return s.Period.Values()
}

// MaxPeriod is the largest period of the space, the warm-up every run of a
// sweep over it starts after. An empty or invalid period axis yields 0.
func (s SearchSpace) MaxPeriod() int {
	periods, err := s.Periods()
	if err != nil || len(periods) == 0 {
		return 0
	}
	return periods[len(periods)-1]
}

// Enumerate expands the space into parameter sets in a fixed order:
// leverage outermost, then period, then upper, then lower.
func Enumerate(s SearchSpace) ([]model.Parameters, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	leverages, _ := s.Leverage.Values()
	periods, _ := s.Period.Values()
	uppers, _ := s.Upper.Values()
	var lowers []float64
	if s.Lower != nil {
		lowers, _ = s.Lower.Values()
	}

	var grid []model.Parameters
	for _, lev := range leverages {
		for _, period := range periods {
			for _, upper := range uppers {
				if s.Lower == nil {
					grid = append(grid, model.Parameters{
						RSIPeriod:  period,
						UpperLevel: upper,
						LowerLevel: 100 - upper,
						Leverage:   lev,
					})
					continue
				}
				for _, lower := range lowers {
					grid = append(grid, model.Parameters{
						RSIPeriod:  period,
						UpperLevel: upper,
						LowerLevel: lower,
						Leverage:   lev,
					})
				}
			}
		}
	}
	return grid, nil
}
