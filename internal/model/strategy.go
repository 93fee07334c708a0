package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PositionType is the side of the simulated (or live) position
type PositionType int

const (
	PositionNone PositionType = iota
	PositionLong
	PositionShort
)

// String implements fmt.Stringer
func (p PositionType) String() string {
	switch p {
	case PositionLong:
		return "LONG"
	case PositionShort:
		return "SHORT"
	default:
		return "NONE"
	}
}

// ParsePositionType parses "LONG", "SHORT" or "NONE" (case-insensitive)
func ParsePositionType(s string) (PositionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return PositionNone, nil
	case "LONG":
		return PositionLong, nil
	case "SHORT":
		return PositionShort, nil
	default:
		return PositionNone, fmt.Errorf("unknown position type %q", s)
	}
}

// MarshalJSON encodes the position type as its name
func (p PositionType) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes a position type name
func (p *PositionType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParsePositionType(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Parameters is one point of the strategy parameter grid
type Parameters struct {
	RSIPeriod  int     `json:"rsi_period" db:"rsi_period" binding:"required,min=1"`
	UpperLevel float64 `json:"upper_level" db:"upper_level"`
	LowerLevel float64 `json:"lower_level" db:"lower_level"`
	Leverage   float64 `json:"leverage" db:"leverage" binding:"required,gt=0"`
}

// String renders the parameters for logs
func (p Parameters) String() string {
	return fmt.Sprintf("period=%d upper=%g lower=%g leverage=%g",
		p.RSIPeriod, p.UpperLevel, p.LowerLevel, p.Leverage)
}
