package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Authorization is the result of a successful coupon authorization.
type Authorization struct {
	Coupon   *Coupon
	Discount decimal.Decimal
}

// Authorizer validates a coupon for one checkout and records the usage fact.
// Authorize and RecordUsage must run in the same ledger transaction as order
// creation: a crash between them rolls back both, so a coupon use can never
// be spent without a matching order, and vice versa.
type Authorizer struct {
	now func() time.Time
}

// NewAuthorizer returns a coupon Authorizer using the wall clock.
func NewAuthorizer() *Authorizer {
	return &Authorizer{now: time.Now}
}

// Authorize validates the code against its activity window and usage caps and
// returns the discount for the given subtotal. The coupon row stays locked
// until the surrounding transaction ends, so the usage counts it observes
// cannot be invalidated by a concurrent checkout.
func (a *Authorizer) Authorize(ctx context.Context, tx TxView, code string, userID uuid.UUID, subtotal decimal.Decimal) (*Authorization, error) {
	c, err := tx.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.Active {
		return nil, ErrInactive
	}

	now := a.now()
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return nil, ErrExpired
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return nil, ErrExpired
	}

	if c.UsesAllowed > 0 {
		used, err := tx.CountUsages(ctx, c.ID)
		if err != nil {
			return nil, errors.Wrap(err, "count usages")
		}
		if used >= c.UsesAllowed {
			return nil, ErrExhausted
		}
	}

	if c.UsesPerUser > 0 {
		used, err := tx.CountUserUsages(ctx, c.ID, userID)
		if err != nil {
			return nil, errors.Wrap(err, "count user usages")
		}
		if used >= c.UsesPerUser {
			return nil, ErrPerUserLimit
		}
	}

	discount, err := c.Discount(subtotal)
	if err != nil {
		return nil, err
	}

	return &Authorization{Coupon: c, Discount: discount}, nil
}

// RecordUsage inserts the immutable usage row for an authorized coupon.
func (a *Authorizer) RecordUsage(ctx context.Context, tx TxView, couponID, userID uuid.UUID) error {
	u := &Usage{
		ID:       uuid.New(),
		CouponID: couponID,
		UserID:   userID,
		UsedAt:   a.now(),
	}
	if err := tx.InsertUsage(ctx, u); err != nil {
		return errors.Wrap(err, "insert coupon usage")
	}
	return nil
}
