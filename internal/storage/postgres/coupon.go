package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
)

const (
	findCouponSQL = `SELECT id, code, discount_type, discount_value, uses_allowed, uses_per_user,
			starts_at, expires_at, active, created_at
		FROM coupons
		WHERE UPPER(code) = UPPER($1)
		FOR UPDATE`

	countUsagesSQL = `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1`

	countUserUsagesSQL = `SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND user_id = $2`

	insertUsageSQL = `INSERT INTO coupon_usages (id, coupon_id, user_id) VALUES ($1, $2, $3)`
)

type couponView struct {
	tx pgx.Tx
}

func (v *couponView) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := v.tx.Query(ctx, findCouponSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon: %w", err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(coupon.ErrNotFound, "code %q", code)
		}
		return nil, err
	}
	return &c, nil
}

func (v *couponView) CountUsages(ctx context.Context, couponID uuid.UUID) (int, error) {
	var n int
	if err := v.tx.QueryRow(ctx, countUsagesSQL, couponID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting coupon usages: %w", err)
	}
	return n, nil
}

func (v *couponView) CountUserUsages(ctx context.Context, couponID, userID uuid.UUID) (int, error) {
	var n int
	if err := v.tx.QueryRow(ctx, countUserUsagesSQL, couponID, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting per-user coupon usages: %w", err)
	}
	return n, nil
}

func (v *couponView) InsertUsage(ctx context.Context, u *coupon.Usage) error {
	_, err := v.tx.Exec(ctx, insertUsageSQL, u.ID, u.CouponID, u.UserID)
	if err != nil {
		return fmt.Errorf("inserting coupon usage: %w", err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var c coupon.Coupon
	err := row.Scan(&c.ID, &c.Code, &c.DiscountType, &c.DiscountValue, &c.UsesAllowed,
		&c.UsesPerUser, &c.StartsAt, &c.ExpiresAt, &c.Active, &c.CreatedAt)
	return c, err
}
