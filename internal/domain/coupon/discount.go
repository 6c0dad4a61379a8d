package coupon

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount returns the amount this coupon takes off total. The result is
// never negative, never exceeds total and is rounded to 2 places.
func (c *Coupon) Discount(total decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		amount = applyPercentage(c, total)
	case DiscountFixed:
		amount = c.Value
	default:
		return decimal.Zero
	}
	return clamp(amount, total).Round(2)
}

func applyPercentage(c *Coupon, total decimal.Decimal) decimal.Decimal {
	amount := total.Mul(c.Value).Div(hundred)
	if c.MaxDiscount.IsPositive() {
		amount = decimal.Min(amount, c.MaxDiscount)
	}
	return amount
}

// clamp bounds d to [0, upper].
func clamp(d, upper decimal.Decimal) decimal.Decimal {
	if d.IsNegative() || upper.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, upper)
}
