package shipment

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/order"
)

// UnallocatableItemError is returned when no combination of live reservations
// covers an order item's full quantity.
type UnallocatableItemError struct {
	OrderItemID uuid.UUID
	ProductID   uuid.UUID
	Required    int
	Covered     int
}

func (e *UnallocatableItemError) Error() string {
	return fmt.Sprintf("order item %s (product %s) cannot be allocated: need %d, reservations cover %d",
		e.OrderItemID, e.ProductID, e.Required, e.Covered)
}

// Line assigns a reservation's quantity of one order item to a planned
// shipment.
type Line struct {
	ReservationID uuid.UUID
	OrderItemID   uuid.UUID
	ProductID     uuid.UUID
	Quantity      int
}

// Plan is one shipment to create: all lines draw from the same warehouse.
type Plan struct {
	WarehouseID uuid.UUID
	Lines       []Line
}

// Splitter allocates order items across shipments. The availability it works
// from is the set of live reservations pledged at checkout: each plan groups
// the reservations of one warehouse, and for every order item the planned
// quantities sum exactly to the ordered quantity.
type Splitter struct{}

// NewSplitter returns a shipment Splitter.
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Allocate builds the shipment plans for the order's items from its active
// reservations. It fails with *UnallocatableItemError when any item's live
// reservations do not cover its quantity exactly; plans are returned in
// deterministic warehouse order.
func (s *Splitter) Allocate(items []order.Item, reservations []inventory.Reservation) ([]Plan, error) {
	covered := make(map[uuid.UUID]int, len(items))
	byWarehouse := make(map[uuid.UUID][]Line)

	for _, r := range reservations {
		if r.State != inventory.StateReserved {
			continue
		}
		covered[r.OrderItemID] += r.Quantity
		byWarehouse[r.WarehouseID] = append(byWarehouse[r.WarehouseID], Line{
			ReservationID: r.ID,
			OrderItemID:   r.OrderItemID,
			ProductID:     r.ProductID,
			Quantity:      r.Quantity,
		})
	}

	for _, item := range items {
		if covered[item.ID] != item.Quantity {
			return nil, &UnallocatableItemError{
				OrderItemID: item.ID,
				ProductID:   item.ProductID,
				Required:    item.Quantity,
				Covered:     covered[item.ID],
			}
		}
	}

	warehouses := make([]uuid.UUID, 0, len(byWarehouse))
	for id := range byWarehouse {
		warehouses = append(warehouses, id)
	}
	sort.Slice(warehouses, func(i, j int) bool {
		return warehouses[i].String() < warehouses[j].String()
	})

	plans := make([]Plan, 0, len(warehouses))
	for _, wh := range warehouses {
		plans = append(plans, Plan{WarehouseID: wh, Lines: byWarehouse[wh]})
	}
	return plans, nil
}
