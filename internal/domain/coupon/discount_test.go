package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDiscountPercent(t *testing.T) {
	c := &Coupon{DiscountType: DiscountPercent, DiscountValue: dec("10")}

	got, err := c.Discount(dec("45.50"))
	require.NoError(t, err)
	require.True(t, got.Equal(dec("4.55")), "got %s", got)
}

func TestDiscountPercentRounds(t *testing.T) {
	c := &Coupon{DiscountType: DiscountPercent, DiscountValue: dec("15")}

	// 15% of 9.99 is 1.4985, rounds to 1.50.
	got, err := c.Discount(dec("9.99"))
	require.NoError(t, err)
	require.True(t, got.Equal(dec("1.50")), "got %s", got)
}

func TestDiscountPercentCappedAtSubtotal(t *testing.T) {
	c := &Coupon{DiscountType: DiscountPercent, DiscountValue: dec("150")}

	got, err := c.Discount(dec("20"))
	require.NoError(t, err)
	require.True(t, got.Equal(dec("20")), "got %s", got)
}

func TestDiscountFixed(t *testing.T) {
	c := &Coupon{DiscountType: DiscountFixed, DiscountValue: dec("5")}

	got, err := c.Discount(dec("30"))
	require.NoError(t, err)
	require.True(t, got.Equal(dec("5")), "got %s", got)
}

func TestDiscountFixedCappedAtSubtotal(t *testing.T) {
	c := &Coupon{DiscountType: DiscountFixed, DiscountValue: dec("50")}

	got, err := c.Discount(dec("12.30"))
	require.NoError(t, err)
	require.True(t, got.Equal(dec("12.30")), "total can never go negative, got %s", got)
}

func TestDiscountUnknownType(t *testing.T) {
	c := &Coupon{DiscountType: "bogus", DiscountValue: dec("10")}

	_, err := c.Discount(dec("10"))
	require.Error(t, err)
}
