// Package money centralizes the engine's fixed-precision decimal
// discipline: every balance, fee, and PnL figure is a decimal.Decimal
// internally and is only rounded to 2 fractional digits at presentation
// time.
package money

import "github.com/shopspring/decimal"

// Present rounds a full-precision decimal to 2 fractional digits for
// display or JSON export. Never use this value for further arithmetic.
func Present(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// PresentFloat is a convenience for call sites still holding a float64 at
// the presentation boundary (e.g. building a JSON summary from inbound
// exchange data).
func PresentFloat(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(2).Float64()
	return r
}

// FromFloat converts an inbound exchange-SDK float (price, volume, ...) into
// the engine's canonical decimal type at the market-data boundary;
// exchange-SDK numeric types never travel past the adapter.
func FromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

var (
	Zero = decimal.Zero
	One  = decimal.NewFromInt(1)
)

// PercentOf returns d * pct/100.
func PercentOf(d decimal.Decimal, pct decimal.Decimal) decimal.Decimal {
	return d.Mul(pct).Div(decimal.NewFromInt(100))
}
