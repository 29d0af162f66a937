package domain

import "github.com/shopspring/decimal"

// DefaultTaxRate is the flat sales tax applied to the cart subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.08")

// Totals are amounts in minor currency units.
type Totals struct {
	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`
}

// ComputeTotals applies rate to subtotal, rounding tax half away from zero to
// a whole minor unit.
func ComputeTotals(subtotal int64, rate decimal.Decimal) Totals {
	tax := decimal.NewFromInt(subtotal).Mul(rate).Round(0).IntPart()
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal + tax}
}

func Subtotal(lines []CartLine) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.LineTotal()
	}
	return sum
}
