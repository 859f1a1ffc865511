// Package coupon implements coupon validation and atomic usage accounting.
// Usage caps are enforced by counting immutable usage rows under the coupon
// row lock, so two concurrent checkouts cannot both take the last slot.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent applies a percentage of the subtotal, capped at the subtotal.
	DiscountPercent DiscountType = "percent"
	// DiscountFixed subtracts a fixed monetary amount, floored at zero.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when no coupon exists for a code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon has been deactivated.
	ErrInactive = errors.New("coupon is not active")
	// ErrExpired is returned when the coupon is outside its activity window.
	ErrExpired = errors.New("coupon expired")
	// ErrExhausted is returned when the global usage cap has been reached.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrPerUserLimit is returned when this user has exhausted their personal cap.
	ErrPerUserLimit = errors.New("coupon per-user limit reached")
)

// Coupon defines a discount rule and its eligibility constraints. Caps of
// zero mean unlimited; a nil window boundary means unbounded on that side.
type Coupon struct {
	ID            uuid.UUID
	Code          string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	UsesAllowed   int
	UsesPerUser   int
	StartsAt      *time.Time
	ExpiresAt     *time.Time
	Active        bool
	CreatedAt     time.Time
}

// Usage is an immutable fact that a user consumed one use of a coupon.
// Both usage caps are computed by counting these rows.
type Usage struct {
	ID       uuid.UUID
	CouponID uuid.UUID
	UserID   uuid.UUID
	UsedAt   time.Time
}

// TxView defines the coupon operations available inside a ledger transaction.
// FindByCode locks the coupon row, serializing usage counting and insertion
// for the same coupon across concurrent transactions.
type TxView interface {
	// FindByCode returns the locked coupon row for the code
	// (case-insensitive). Implementations return ErrNotFound when no coupon
	// exists for the code.
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	CountUsages(ctx context.Context, couponID uuid.UUID) (int, error)
	CountUserUsages(ctx context.Context, couponID, userID uuid.UUID) (int, error)
	InsertUsage(ctx context.Context, u *Usage) error
}
