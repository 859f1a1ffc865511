package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Discount calculates the discount amount for the coupon against an order
// subtotal. Percent discounts multiply the subtotal by value/100 and can
// never exceed the subtotal; fixed discounts are capped at the subtotal so
// the resulting total is floored at zero. Results are rounded to 2 decimal
// places.
func (c *Coupon) Discount(subtotal decimal.Decimal) (decimal.Decimal, error) {
	switch c.DiscountType {
	case DiscountPercent:
		amount := subtotal.Mul(c.DiscountValue).Div(hundred)
		return clamp(amount, subtotal).Round(2), nil
	case DiscountFixed:
		return clamp(c.DiscountValue, subtotal).Round(2), nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", c.DiscountType)
	}
}

// clamp bounds d into [0, max].
func clamp(d, max decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(max) {
		return max
	}
	return d
}
