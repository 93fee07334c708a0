package strategy

import (
	"github.com/yourorg/strategy-optimizer/internal/model"
)

// Signal is a transition requested by the strategy
type Signal int

const (
	SignalNone Signal = iota
	SignalOpenLong
	SignalOpenShort
	SignalCloseLong
	SignalCloseShort
	SignalLongToShort
	SignalShortToLong
)

var signalNames = map[Signal]string{
	SignalNone:        "NONE",
	SignalOpenLong:    "OPEN_LONG",
	SignalOpenShort:   "OPEN_SHORT",
	SignalCloseLong:   "CLOSE_LONG",
	SignalCloseShort:  "CLOSE_SHORT",
	SignalLongToShort: "LONG_TO_SHORT",
	SignalShortToLong: "SHORT_TO_LONG",
}

// String implements fmt.Stringer
func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Target returns the position type the signal leads to
func (s Signal) Target(current model.PositionType) model.PositionType {
	switch s {
	case SignalOpenLong, SignalShortToLong:
		return model.PositionLong
	case SignalOpenShort, SignalLongToShort:
		return model.PositionShort
	case SignalCloseLong, SignalCloseShort:
		return model.PositionNone
	default:
		return current
	}
}

// Thresholds are the indicator levels the signal compares against
type Thresholds struct {
	Upper float64
	Lower float64
}

// ThresholdsOf extracts the thresholds from a parameter set
func ThresholdsOf(p model.Parameters) Thresholds {
	return Thresholds{Upper: p.UpperLevel, Lower: p.LowerLevel}
}

// Evaluate decides the transition for the current position given the
// indicator value of the previous bar. It is pure and safe for concurrent use.
func Evaluate(v Variant, position model.PositionType, previous float64, th Thresholds, unrealizedProfit bool) Signal {
	switch position {
	case model.PositionNone:
		if previous > th.Upper {
			return SignalOpenLong
		}
		if v.AllowShort && previous < th.Lower {
			return SignalOpenShort
		}

	case model.PositionLong:
		if previous < th.Lower && v.Gate.allows(unrealizedProfit) {
			if v.Style == StyleFlip && v.AllowShort {
				return SignalLongToShort
			}
			return SignalCloseLong
		}

	case model.PositionShort:
		if previous > th.Upper && v.Gate.allows(unrealizedProfit) {
			if v.Style == StyleFlip {
				return SignalShortToLong
			}
			return SignalCloseShort
		}
	}

	return SignalNone
}

// UnrealizedProfit reports whether price has moved in the position's favour
func UnrealizedProfit(position model.PositionType, entryPrice, price float64) bool {
	switch position {
	case model.PositionLong:
		return entryPrice < price
	case model.PositionShort:
		return entryPrice > price
	default:
		return false
	}
}
