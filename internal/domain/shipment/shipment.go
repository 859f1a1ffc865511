// Package shipment models the physical fulfillment of an order: one or more
// shipments, each drawing all of its items from a single warehouse.
package shipment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Status enumerates the states of a single shipment.
type Status string

const (
	StatusCreated   Status = "created"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Shipment groups items leaving one warehouse for one order, so a single
// carrier tracking reference covers a coherent physical package.
type Shipment struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	WarehouseID uuid.UUID
	Status      Status
	TrackingRef string
	CreatedAt   time.Time
}

// Item assigns a quantity of one order item to a shipment. For each order
// item, the quantities across all non-cancelled shipments never exceed the
// ordered quantity.
type Item struct {
	ID          uuid.UUID
	ShipmentID  uuid.UUID
	OrderItemID uuid.UUID
	Quantity    int
}

// TxView defines the shipment operations available inside a ledger
// transaction.
type TxView interface {
	Insert(ctx context.Context, s *Shipment) error
	InsertItem(ctx context.Context, item *Item) error
	ForOrder(ctx context.Context, orderID uuid.UUID) ([]Shipment, error)
	Items(ctx context.Context, shipmentID uuid.UUID) ([]Item, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}
