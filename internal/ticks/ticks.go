// Package ticks implements the fixed-scale integer price/quantity
// representation the aggregated book is keyed by. Decimal arithmetic from
// venue wire payloads is converted to ticks at the edge; everything behind
// that edge compares and orders plain int64s.
package ticks

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Price is a price expressed in integer ticks at some Scale.
type Price int64

// Qty is a quantity expressed in integer ticks at some Scale.
type Qty int64

// Scale is the number of decimal places one tick represents.
type Scale uint8

// DefaultScale matches the aggregator's default price-tick scale.
const DefaultScale Scale = 8

func (s Scale) factor() decimal.Decimal {
	return decimal.New(1, int32(s))
}

// ParsePrice converts a decimal wire string (e.g. "1234.50000000") into
// ticks at the given scale, rounding to the nearest tick.
func ParsePrice(s string, scale Scale) (Price, error) {
	v, err := parseTicks(s, scale)
	if err != nil {
		return 0, fmt.Errorf("ticks: parse price %q: %w", s, err)
	}
	return Price(v), nil
}

// ParseQty converts a decimal wire string into ticks at the given scale.
func ParseQty(s string, scale Scale) (Qty, error) {
	v, err := parseTicks(s, scale)
	if err != nil {
		return 0, fmt.Errorf("ticks: parse qty %q: %w", s, err)
	}
	return Qty(v), nil
}

func parseTicks(s string, scale Scale) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.Mul(scale.factor()).Round(0).IntPart(), nil
}

// Float renders a price back to a float64 for outbound wire messages.
func (p Price) Float(scale Scale) float64 {
	f, _ := decimal.New(int64(p), 0).Div(scale.factor()).Float64()
	return f
}

// Float renders a quantity back to a float64 for outbound wire messages.
func (q Qty) Float(scale Scale) float64 {
	f, _ := decimal.New(int64(q), 0).Div(scale.factor()).Float64()
	return f
}
