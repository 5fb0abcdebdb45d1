// Package money holds the pure price arithmetic used by checkout and the
// coupon engine. All functions operate on full-precision decimals; rounding
// to 2 decimal places happens only at the response boundary via Round, so
// intermediate math never compounds rounding error across lines.
package money

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// LineTotal returns price * quantity for a single cart or order line.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// PercentDiscount returns subtotal * value / 100.
func PercentDiscount(subtotal, value decimal.Decimal) decimal.Decimal {
	return subtotal.Mul(value).Div(hundred)
}

// FixedDiscount returns the fixed discount value capped at the subtotal,
// so a $20 coupon on a $15 order never produces a negative total.
func FixedDiscount(subtotal, value decimal.Decimal) decimal.Decimal {
	return decimal.Min(value, subtotal)
}

// FinalTotal returns subtotal - discount, floored at zero.
func FinalTotal(subtotal, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Round normalizes a monetary amount for presentation or persistence.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
