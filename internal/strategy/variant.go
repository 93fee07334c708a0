package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// Style selects what happens when an open position meets the opposite threshold
type Style string

const (
	// StyleFlip closes and reopens on the other side in the same bar
	StyleFlip Style = "flip"
	// StyleFlat closes to no position
	StyleFlat Style = "flat"
)

// CloseGate restricts exits by the unrealized profit state
type CloseGate string

const (
	GateNone         CloseGate = "none"
	GateUnlessProfit CloseGate = "unless-profit"
	GateOnlyProfit   CloseGate = "only-profit"
)

func (g CloseGate) allows(unrealizedProfit bool) bool {
	switch g {
	case GateUnlessProfit:
		return !unrealizedProfit
	case GateOnlyProfit:
		return unrealizedProfit
	default:
		return true
	}
}

// Variant is the tagged configuration of one strategy flavour
type Variant struct {
	Name       string    `json:"name" mapstructure:"name"`
	Style      Style     `json:"style" mapstructure:"style"`
	AllowShort bool      `json:"allow_short" mapstructure:"allowShort"`
	Gate       CloseGate `json:"gate" mapstructure:"gate"`
}

// Validate checks the variant fields
func (v Variant) Validate() error {
	switch v.Style {
	case StyleFlip, StyleFlat:
	default:
		return fmt.Errorf("unknown strategy style %q", v.Style)
	}
	switch v.Gate {
	case GateNone, GateUnlessProfit, GateOnlyProfit:
	default:
		return fmt.Errorf("unknown close gate %q", v.Gate)
	}
	return nil
}

var presets = map[string]Variant{
	"two-sided": {Name: "two-sided", Style: StyleFlip, AllowShort: true, Gate: GateNone},
	"long-only": {Name: "long-only", Style: StyleFlat, AllowShort: false, Gate: GateNone},
	"flat":      {Name: "flat", Style: StyleFlat, AllowShort: true, Gate: GateNone},
	"flat-profit-gated": {
		Name:       "flat-profit-gated",
		Style:      StyleFlat,
		AllowShort: true,
		Gate:       GateUnlessProfit,
	},
}

// DefaultVariant is the canonical two-sided strategy
const DefaultVariant = "two-sided"

// Lookup returns a preset variant by name
func Lookup(name string) (Variant, error) {
	if name == "" {
		name = DefaultVariant
	}
	v, ok := presets[strings.ToLower(name)]
	if !ok {
		return Variant{}, fmt.Errorf("unknown strategy variant %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return v, nil
}

// Names lists the preset names
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
