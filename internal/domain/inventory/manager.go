package inventory

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ConsistencyError reports an invariant breach on a stock level, such as
// reserved stock going negative or exceeding physical quantity. It is fatal:
// the engine surfaces it to operators and never silently clamps the row.
type ConsistencyError struct {
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Detail      string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inventory consistency violation on (%s, %s): %s",
		e.ProductID, e.WarehouseID, e.Detail)
}

// Manager converts available stock into reserved stock for an order attempt
// and releases or commits reservations as the order progresses. All methods
// must be called inside a ledger transaction; the TxView's locked reads
// serialize concurrent mutations of the same stock row.
type Manager struct{}

// NewManager returns an inventory reservation Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Reserve pledges qty units of the product at the given warehouse. It fails
// with *InsufficientStockError when available stock is short, without
// modifying the row.
func (m *Manager) Reserve(ctx context.Context, tx TxView, productID, warehouseID uuid.UUID, qty int) error {
	if qty <= 0 {
		return errors.Errorf("reserve quantity must be positive, got %d", qty)
	}

	lvl, err := tx.Level(ctx, productID, warehouseID)
	if err != nil {
		return errors.Wrap(err, "load stock level")
	}

	if lvl.Available() < qty {
		return &InsufficientStockError{
			ProductID:   productID,
			WarehouseID: warehouseID,
			Requested:   qty,
			Available:   lvl.Available(),
		}
	}

	lvl.Reserved += qty
	if err := checkLevel(lvl); err != nil {
		return err
	}

	return tx.UpdateLevel(ctx, lvl)
}

// Commit converts the reservation into a physical stock decrement: both
// quantity and reserved drop by the reserved amount. Only reservations in
// StateReserved are committed; calling Commit again on an already-committed
// reservation is a no-op.
func (m *Manager) Commit(ctx context.Context, tx TxView, r *Reservation) error {
	if r.State != StateReserved {
		return nil
	}

	lvl, err := tx.Level(ctx, r.ProductID, r.WarehouseID)
	if err != nil {
		return errors.Wrap(err, "load stock level")
	}

	lvl.Quantity -= r.Quantity
	lvl.Reserved -= r.Quantity
	if err := checkLevel(lvl); err != nil {
		return err
	}

	if err := tx.UpdateLevel(ctx, lvl); err != nil {
		return errors.Wrap(err, "update stock level")
	}

	r.State = StateCommitted
	return tx.UpdateReservation(ctx, r)
}

// Release returns the reserved amount to the sellable pool without touching
// physical quantity. It is idempotent: a reservation that is already released
// or committed is left untouched, so duplicate release calls cannot drive
// reserved negative.
func (m *Manager) Release(ctx context.Context, tx TxView, r *Reservation) error {
	if r.State != StateReserved {
		return nil
	}

	lvl, err := tx.Level(ctx, r.ProductID, r.WarehouseID)
	if err != nil {
		return errors.Wrap(err, "load stock level")
	}

	lvl.Reserved -= r.Quantity
	if err := checkLevel(lvl); err != nil {
		return err
	}

	if err := tx.UpdateLevel(ctx, lvl); err != nil {
		return errors.Wrap(err, "update stock level")
	}

	r.State = StateReleased
	return tx.UpdateReservation(ctx, r)
}

// ReleaseAll releases every still-reserved reservation belonging to the
// order. Used on cancellation and payment failure.
func (m *Manager) ReleaseAll(ctx context.Context, tx TxView, orderID uuid.UUID) error {
	reservations, err := tx.ReservationsForOrder(ctx, orderID)
	if err != nil {
		return errors.Wrap(err, "load reservations")
	}

	for i := range reservations {
		if err := m.Release(ctx, tx, &reservations[i]); err != nil {
			return err
		}
	}
	return nil
}

// checkLevel enforces 0 <= reserved <= quantity on every mutation.
func checkLevel(lvl *Level) error {
	if lvl.Reserved < 0 || lvl.Quantity < 0 || lvl.Reserved > lvl.Quantity {
		return &ConsistencyError{
			ProductID:   lvl.ProductID,
			WarehouseID: lvl.WarehouseID,
			Detail:      fmt.Sprintf("quantity=%d reserved=%d", lvl.Quantity, lvl.Reserved),
		}
	}
	return nil
}
