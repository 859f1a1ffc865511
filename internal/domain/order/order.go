// Package order holds the order aggregate: the status state machine, line
// item snapshots, and the monetary breakdown fixed at creation time.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the closed set of order lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// transitions is the full state machine. Absence means the transition is
// invalid.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:    {StatusDelivered},
}

// CanTransition reports whether moving from s to target is a legal lifecycle
// step.
func (s Status) CanTransition(target Status) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// InvalidTransitionError indicates an attempted lifecycle step the state
// machine does not allow.
type InvalidTransitionError struct {
	OrderID uuid.UUID
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// Validation errors for checkout requests.
var (
	ErrEmptyItems      = errors.New("items required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Order is the aggregate root. Monetary fields are computed once at creation
// and immutable afterwards; only the orchestrator mutates Status.
// Invariant: Total = Subtotal + Shipping + Tax - Discount.
type Order struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	Status            Status
	Subtotal          decimal.Decimal
	Shipping          decimal.Decimal
	Tax               decimal.Decimal
	Discount          decimal.Decimal
	Total             decimal.Decimal
	Currency          string
	CouponID          *uuid.UUID
	ShippingAddressID *uuid.UUID
	BillingAddressID  *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Item snapshots the product's sku, name, and unit price at order time so
// historical orders stay correct when the live product later changes.
type Item struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	SKU       string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// Summary is the read-only reporting projection: item counts alongside the
// monetary totals. Derived from orders and order_items, never separately
// maintained.
type Summary struct {
	OrderID   uuid.UUID
	UserID    uuid.UUID
	Status    Status
	Subtotal  decimal.Decimal
	Shipping  decimal.Decimal
	Tax       decimal.Decimal
	Discount  decimal.Decimal
	Total     decimal.Decimal
	Currency  string
	ItemCount int
	UnitCount int
	CreatedAt time.Time
}

// TxView defines the order operations available inside a ledger transaction.
type TxView interface {
	Insert(ctx context.Context, o *Order) error
	InsertItem(ctx context.Context, item *Item) error
	// Get returns the locked order row, serializing lifecycle steps for the
	// same order.
	Get(ctx context.Context, id uuid.UUID) (*Order, error)
	Items(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	Summary(ctx context.Context, id uuid.UUID) (*Summary, error)
}
