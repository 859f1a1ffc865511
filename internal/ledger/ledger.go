// Package ledger defines the transactional storage contract shared by every
// component of the fulfillment engine. A Store executes work against a
// consistent snapshot and commits atomically or not at all; concurrent
// transactions touching the same inventory level or coupon usage set
// serialize through row locks (PostgreSQL) or store-wide serialization with
// version validation (in-memory).
package ledger

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/domain/shipment"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("ledger: row not found")
	// ErrConflict is returned when a transaction could not commit because of a
	// concurrent modification. Callers may retry the whole transaction.
	ErrConflict = errors.New("ledger: concurrent modification")
)

// Tx exposes typed views over the entity tables for the duration of a single
// transaction. All reads through a Tx observe the transaction's snapshot and
// all writes are applied atomically on commit.
type Tx interface {
	Products() product.TxView
	Inventory() inventory.TxView
	Coupons() coupon.TxView
	Orders() order.TxView
	Payments() payment.TxView
	Shipments() shipment.TxView
}

// Store is the unit-of-work entry point. WithinTx begins a transaction, runs
// fn, and commits when fn returns nil. Any error from fn rolls the whole
// transaction back, leaving no partial state behind.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
