package tcp

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Book prices are integer ticks of one thousandth of the currency unit.
// Clients speak decimal strings ("184.250"); the conversion lives entirely
// at this boundary, the engine never sees a decimal.

var tickScale = decimal.NewFromInt(1000)

var errBadPrice = errors.New("price must be a positive multiple of 0.001")

// ParsePrice converts a client decimal price into ticks.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	t := d.Mul(tickScale)
	if !t.IsInteger() || t.Sign() <= 0 {
		return 0, errBadPrice
	}
	return t.IntPart(), nil
}

// FormatPrice renders ticks back as the client-facing decimal string.
func FormatPrice(ticks int64) string {
	return decimal.NewFromInt(ticks).Div(tickScale).StringFixed(3)
}
