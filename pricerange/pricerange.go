// Copyright (c) 2025 BVK Chaitanya

// Package pricerange computes the operating price band for a worker from a
// reference price and a fixed half-width offset.
package pricerange

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidPrice is returned when a price string is empty or doesn't hold a
// finite decimal number.
var ErrInvalidPrice = errors.New("invalid price")

// Range is an immutable [Lower, Upper] price band. Lower is always strictly
// less than the Upper.
type Range struct {
	Lower decimal.Decimal
	Upper decimal.Decimal
}

// ParsePrice parses a price string as returned by the exchange.
func ParsePrice(s string) (decimal.Decimal, error) {
	v := strings.TrimSpace(s)
	if len(v) == 0 {
		return decimal.Zero, fmt.Errorf("empty price value %q: %w", s, ErrInvalidPrice)
	}
	p, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("non-numeric price value %q: %w", s, ErrInvalidPrice)
	}
	return p, nil
}

// Compute parses the price string and returns the range around it.
func Compute(price string, offset decimal.Decimal) (*Range, error) {
	p, err := ParsePrice(price)
	if err != nil {
		return nil, err
	}
	return New(p, offset)
}

// New returns the range {price-offset, price+offset}. Offset must be
// positive.
func New(price, offset decimal.Decimal) (*Range, error) {
	if !offset.IsPositive() {
		return nil, fmt.Errorf("range offset %s must be positive: %w", offset, os.ErrInvalid)
	}
	return &Range{
		Lower: price.Sub(offset),
		Upper: price.Add(offset),
	}, nil
}

// Contains returns true if price is inside the range. Prices equal to either
// bound are inside.
func (r *Range) Contains(price decimal.Decimal) bool {
	return price.GreaterThanOrEqual(r.Lower) && price.LessThanOrEqual(r.Upper)
}

// Equal returns true if both ranges have the same bounds.
func (r *Range) Equal(other *Range) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Lower.Equal(other.Lower) && r.Upper.Equal(other.Upper)
}

// Args returns the bounds in the positional argument form expected by the
// worker executable.
func (r *Range) Args() []string {
	return []string{r.Lower.String(), r.Upper.String()}
}

func (r *Range) String() string {
	if r == nil {
		return "{}"
	}
	return fmt.Sprintf("{%s ~ %s}", r.Lower.String(), r.Upper.String())
}
