// Package inventory tracks per-warehouse stock levels and the reservations
// pledged against them. A reservation sets stock aside for an order without
// physically removing it; committing a reservation decrements physical stock
// at shipment time, releasing it returns the stock to the sellable pool.
package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsufficientStockError is returned when a reservation request exceeds the
// available (unreserved) stock for a product.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// Level is the physical stock row for a (product, warehouse) pair.
// Invariant: 0 <= Reserved <= Quantity at all times.
type Level struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    int
	Reserved    int
}

// Available returns the stock that can still be pledged to new orders.
func (l Level) Available() int {
	return l.Quantity - l.Reserved
}

// ReservationState tracks the lifecycle of a single reservation. The state
// flag, not quantity arithmetic, is what makes Release and Commit idempotent.
type ReservationState string

const (
	// StateReserved means stock is pledged but still physically present.
	StateReserved ReservationState = "reserved"
	// StateCommitted means the pledge was converted into a physical decrement.
	StateCommitted ReservationState = "committed"
	// StateReleased means the pledge was returned to the sellable pool.
	StateReleased ReservationState = "released"
)

// Reservation pledges a quantity of one product at one warehouse to a single
// order item. An order item may hold several reservations when its quantity
// is split across warehouses.
type Reservation struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	OrderItemID uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    int
	State       ReservationState
}

// TxView defines the inventory operations available inside a ledger
// transaction. Level reads lock the row for the remainder of the transaction
// so that concurrent reservations against the same row serialize.
type TxView interface {
	// Level returns the locked stock row for the pair.
	Level(ctx context.Context, productID, warehouseID uuid.UUID) (*Level, error)
	// LevelsForProduct returns all locked stock rows for a product in a
	// deterministic warehouse order.
	LevelsForProduct(ctx context.Context, productID uuid.UUID) ([]Level, error)
	UpdateLevel(ctx context.Context, level *Level) error

	InsertReservation(ctx context.Context, r *Reservation) error
	ReservationsForOrder(ctx context.Context, orderID uuid.UUID) ([]Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error
}
