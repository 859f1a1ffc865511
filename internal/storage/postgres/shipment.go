package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oakmart/fulfillment/internal/domain/shipment"
	"github.com/oakmart/fulfillment/internal/ledger"
)

const (
	insertShipmentSQL = `INSERT INTO shipments
		(id, order_id, warehouse_id, status, tracking_ref)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING created_at`

	insertShipmentItemSQL = `INSERT INTO shipment_items
		(id, shipment_id, order_item_id, quantity)
		VALUES ($1, $2, $3, $4)`

	shipmentsForOrderSQL = `SELECT id, order_id, warehouse_id, status,
			COALESCE(tracking_ref, ''), created_at
		FROM shipments
		WHERE order_id = $1
		ORDER BY id
		FOR UPDATE`

	shipmentItemsSQL = `SELECT id, shipment_id, order_item_id, quantity
		FROM shipment_items
		WHERE shipment_id = $1
		ORDER BY id`

	updateShipmentStatusSQL = `UPDATE shipments SET status = $2 WHERE id = $1`
)

type shipmentView struct {
	tx pgx.Tx
}

func (v *shipmentView) Insert(ctx context.Context, s *shipment.Shipment) error {
	err := v.tx.QueryRow(ctx, insertShipmentSQL,
		s.ID, s.OrderID, s.WarehouseID, s.Status, s.TrackingRef,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting shipment: %w", err)
	}
	return nil
}

func (v *shipmentView) InsertItem(ctx context.Context, item *shipment.Item) error {
	_, err := v.tx.Exec(ctx, insertShipmentItemSQL,
		item.ID, item.ShipmentID, item.OrderItemID, item.Quantity)
	if err != nil {
		return fmt.Errorf("inserting shipment item: %w", err)
	}
	return nil
}

func (v *shipmentView) ForOrder(ctx context.Context, orderID uuid.UUID) ([]shipment.Shipment, error) {
	rows, err := v.tx.Query(ctx, shipmentsForOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting shipments: %w", err)
	}
	return pgx.CollectRows(rows, scanShipment)
}

func (v *shipmentView) Items(ctx context.Context, shipmentID uuid.UUID) ([]shipment.Item, error) {
	rows, err := v.tx.Query(ctx, shipmentItemsSQL, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("getting shipment items: %w", err)
	}
	return pgx.CollectRows(rows, scanShipmentItem)
}

func (v *shipmentView) UpdateStatus(ctx context.Context, id uuid.UUID, status shipment.Status) error {
	tag, err := v.tx.Exec(ctx, updateShipmentStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating shipment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ledger.ErrNotFound, "shipment %s", id)
	}
	return nil
}

func scanShipment(row pgx.CollectableRow) (shipment.Shipment, error) {
	var s shipment.Shipment
	err := row.Scan(&s.ID, &s.OrderID, &s.WarehouseID, &s.Status, &s.TrackingRef, &s.CreatedAt)
	return s, err
}

func scanShipmentItem(row pgx.CollectableRow) (shipment.Item, error) {
	var item shipment.Item
	err := row.Scan(&item.ID, &item.ShipmentID, &item.OrderItemID, &item.Quantity)
	return item, err
}
