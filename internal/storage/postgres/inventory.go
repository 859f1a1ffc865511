package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/ledger"
)

const (
	getLevelSQL = `SELECT product_id, warehouse_id, quantity, reserved
		FROM inventory_levels
		WHERE product_id = $1 AND warehouse_id = $2
		FOR UPDATE`

	levelsForProductSQL = `SELECT product_id, warehouse_id, quantity, reserved
		FROM inventory_levels
		WHERE product_id = $1
		ORDER BY warehouse_id
		FOR UPDATE`

	updateLevelSQL = `UPDATE inventory_levels
		SET quantity = $3, reserved = $4
		WHERE product_id = $1 AND warehouse_id = $2`

	insertReservationSQL = `INSERT INTO reservations
		(id, order_id, order_item_id, product_id, warehouse_id, quantity, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	reservationsForOrderSQL = `SELECT id, order_id, order_item_id, product_id, warehouse_id, quantity, state
		FROM reservations
		WHERE order_id = $1
		ORDER BY id
		FOR UPDATE`

	updateReservationSQL = `UPDATE reservations SET state = $2 WHERE id = $1`
)

type inventoryView struct {
	tx pgx.Tx
}

func (v *inventoryView) Level(ctx context.Context, productID, warehouseID uuid.UUID) (*inventory.Level, error) {
	rows, err := v.tx.Query(ctx, getLevelSQL, productID, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("getting inventory level: %w", err)
	}
	lvl, err := pgx.CollectExactlyOneRow(rows, scanLevel)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(ledger.ErrNotFound, "inventory level for product %s", productID)
		}
		return nil, err
	}
	return &lvl, nil
}

func (v *inventoryView) LevelsForProduct(ctx context.Context, productID uuid.UUID) ([]inventory.Level, error) {
	rows, err := v.tx.Query(ctx, levelsForProductSQL, productID)
	if err != nil {
		return nil, fmt.Errorf("getting inventory levels: %w", err)
	}
	return pgx.CollectRows(rows, scanLevel)
}

func (v *inventoryView) UpdateLevel(ctx context.Context, lvl *inventory.Level) error {
	tag, err := v.tx.Exec(ctx, updateLevelSQL, lvl.ProductID, lvl.WarehouseID, lvl.Quantity, lvl.Reserved)
	if err != nil {
		return fmt.Errorf("updating inventory level: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ledger.ErrNotFound, "inventory level for product %s", lvl.ProductID)
	}
	return nil
}

func (v *inventoryView) InsertReservation(ctx context.Context, r *inventory.Reservation) error {
	_, err := v.tx.Exec(ctx, insertReservationSQL,
		r.ID, r.OrderID, r.OrderItemID, r.ProductID, r.WarehouseID, r.Quantity, r.State)
	if err != nil {
		return fmt.Errorf("inserting reservation: %w", err)
	}
	return nil
}

func (v *inventoryView) ReservationsForOrder(ctx context.Context, orderID uuid.UUID) ([]inventory.Reservation, error) {
	rows, err := v.tx.Query(ctx, reservationsForOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting reservations: %w", err)
	}
	return pgx.CollectRows(rows, scanReservation)
}

func (v *inventoryView) UpdateReservation(ctx context.Context, r *inventory.Reservation) error {
	tag, err := v.tx.Exec(ctx, updateReservationSQL, r.ID, r.State)
	if err != nil {
		return fmt.Errorf("updating reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ledger.ErrNotFound, "reservation %s", r.ID)
	}
	return nil
}

func scanLevel(row pgx.CollectableRow) (inventory.Level, error) {
	var lvl inventory.Level
	err := row.Scan(&lvl.ProductID, &lvl.WarehouseID, &lvl.Quantity, &lvl.Reserved)
	return lvl, err
}

func scanReservation(row pgx.CollectableRow) (inventory.Reservation, error) {
	var r inventory.Reservation
	err := row.Scan(&r.ID, &r.OrderID, &r.OrderItemID, &r.ProductID, &r.WarehouseID, &r.Quantity, &r.State)
	return r, err
}
