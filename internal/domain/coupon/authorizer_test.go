package coupon

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// stubView serves a single coupon with fixed usage counts.
type stubView struct {
	coupon     *Coupon
	used       int
	userUsed   int
	insertions []Usage
}

func (s *stubView) FindByCode(_ context.Context, code string) (*Coupon, error) {
	if s.coupon == nil || !strings.EqualFold(s.coupon.Code, code) {
		return nil, ErrNotFound
	}
	c := *s.coupon
	return &c, nil
}

func (s *stubView) CountUsages(context.Context, uuid.UUID) (int, error) {
	return s.used, nil
}

func (s *stubView) CountUserUsages(context.Context, uuid.UUID, uuid.UUID) (int, error) {
	return s.userUsed, nil
}

func (s *stubView) InsertUsage(_ context.Context, u *Usage) error {
	s.insertions = append(s.insertions, *u)
	return nil
}

func testAuthorizer(now time.Time) *Authorizer {
	return &Authorizer{now: func() time.Time { return now }}
}

func activeCoupon() *Coupon {
	return &Coupon{
		ID:            uuid.New(),
		Code:          "SAVE10",
		DiscountType:  DiscountPercent,
		DiscountValue: dec("10"),
		Active:        true,
	}
}

func TestAuthorizeHappyPath(t *testing.T) {
	view := &stubView{coupon: activeCoupon()}
	a := testAuthorizer(time.Now())

	auth, err := a.Authorize(context.Background(), view, "save10", uuid.New(), dec("100"))
	require.NoError(t, err)
	require.True(t, auth.Discount.Equal(dec("10")), "got %s", auth.Discount)
	require.Equal(t, view.coupon.ID, auth.Coupon.ID)
}

func TestAuthorizeUnknownCode(t *testing.T) {
	view := &stubView{}
	a := testAuthorizer(time.Now())

	_, err := a.Authorize(context.Background(), view, "NOPE", uuid.New(), dec("100"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorizeInactive(t *testing.T) {
	c := activeCoupon()
	c.Active = false
	a := testAuthorizer(time.Now())

	_, err := a.Authorize(context.Background(), &stubView{coupon: c}, c.Code, uuid.New(), dec("100"))
	require.ErrorIs(t, err, ErrInactive)
}

func TestAuthorizeWindow(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	t.Run("not started yet", func(t *testing.T) {
		c := activeCoupon()
		c.StartsAt = &after
		_, err := testAuthorizer(now).Authorize(context.Background(), &stubView{coupon: c}, c.Code, uuid.New(), dec("100"))
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("already expired", func(t *testing.T) {
		c := activeCoupon()
		c.ExpiresAt = &before
		_, err := testAuthorizer(now).Authorize(context.Background(), &stubView{coupon: c}, c.Code, uuid.New(), dec("100"))
		require.ErrorIs(t, err, ErrExpired)
	})

	t.Run("inside window", func(t *testing.T) {
		c := activeCoupon()
		c.StartsAt = &before
		c.ExpiresAt = &after
		_, err := testAuthorizer(now).Authorize(context.Background(), &stubView{coupon: c}, c.Code, uuid.New(), dec("100"))
		require.NoError(t, err)
	})
}

func TestAuthorizeGlobalCap(t *testing.T) {
	c := activeCoupon()
	c.UsesAllowed = 5

	_, err := testAuthorizer(time.Now()).Authorize(context.Background(),
		&stubView{coupon: c, used: 5}, c.Code, uuid.New(), dec("100"))
	require.ErrorIs(t, err, ErrExhausted)

	_, err = testAuthorizer(time.Now()).Authorize(context.Background(),
		&stubView{coupon: c, used: 4}, c.Code, uuid.New(), dec("100"))
	require.NoError(t, err)
}

func TestAuthorizePerUserCap(t *testing.T) {
	c := activeCoupon()
	c.UsesPerUser = 1

	_, err := testAuthorizer(time.Now()).Authorize(context.Background(),
		&stubView{coupon: c, userUsed: 1}, c.Code, uuid.New(), dec("100"))
	require.ErrorIs(t, err, ErrPerUserLimit)
}

func TestAuthorizeZeroCapsAreUnlimited(t *testing.T) {
	c := activeCoupon()

	_, err := testAuthorizer(time.Now()).Authorize(context.Background(),
		&stubView{coupon: c, used: 1_000_000, userUsed: 999}, c.Code, uuid.New(), dec("100"))
	require.NoError(t, err)
}

func TestRecordUsage(t *testing.T) {
	view := &stubView{}
	userID := uuid.New()
	couponID := uuid.New()

	require.NoError(t, testAuthorizer(time.Now()).RecordUsage(context.Background(), view, couponID, userID))
	require.Len(t, view.insertions, 1)
	require.Equal(t, couponID, view.insertions[0].CouponID)
	require.Equal(t, userID, view.insertions[0].UserID)
	require.False(t, view.insertions[0].UsedAt.IsZero())
}
