package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/ledger"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, user_id, status, subtotal, shipping, tax, discount, total, currency,
		 coupon_id, shipping_address_id, billing_address_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	insertOrderItemSQL = `INSERT INTO order_items
		(id, order_id, product_id, sku, name, unit_price, quantity, line_total)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	getOrderSQL = `SELECT id, user_id, status, subtotal, shipping, tax, discount, total, currency,
			coupon_id, shipping_address_id, billing_address_id, created_at, updated_at
		FROM orders
		WHERE id = $1
		FOR UPDATE`

	orderItemsSQL = `SELECT id, order_id, product_id, sku, name, unit_price, quantity, line_total
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	orderSummarySQL = `SELECT id, user_id, status, subtotal, shipping, tax, discount, total,
			currency, item_count, unit_count, created_at
		FROM order_summaries
		WHERE id = $1`
)

type orderView struct {
	tx pgx.Tx
}

func (v *orderView) Insert(ctx context.Context, o *order.Order) error {
	err := v.tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.UserID, o.Status, o.Subtotal, o.Shipping, o.Tax, o.Discount, o.Total,
		o.Currency, o.CouponID, o.ShippingAddressID, o.BillingAddressID,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}
	return nil
}

func (v *orderView) InsertItem(ctx context.Context, item *order.Item) error {
	_, err := v.tx.Exec(ctx, insertOrderItemSQL,
		item.ID, item.OrderID, item.ProductID, item.SKU, item.Name,
		item.UnitPrice, item.Quantity, item.LineTotal)
	if err != nil {
		return fmt.Errorf("inserting order item: %w", err)
	}
	return nil
}

func (v *orderView) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	rows, err := v.tx.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(ledger.ErrNotFound, "order %s", id)
		}
		return nil, err
	}
	return &o, nil
}

func (v *orderView) Items(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := v.tx.Query(ctx, orderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting order items: %w", err)
	}
	return pgx.CollectRows(rows, scanOrderItem)
}

func (v *orderView) UpdateStatus(ctx context.Context, id uuid.UUID, status order.Status) error {
	tag, err := v.tx.Exec(ctx, updateOrderStatusSQL, id, status)
	if err != nil {
		return fmt.Errorf("updating order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ledger.ErrNotFound, "order %s", id)
	}
	return nil
}

func (v *orderView) Summary(ctx context.Context, id uuid.UUID) (*order.Summary, error) {
	rows, err := v.tx.Query(ctx, orderSummarySQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order summary: %w", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, scanSummary)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(ledger.ErrNotFound, "order %s", id)
		}
		return nil, err
	}
	return &s, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Subtotal, &o.Shipping, &o.Tax,
		&o.Discount, &o.Total, &o.Currency, &o.CouponID, &o.ShippingAddressID,
		&o.BillingAddressID, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanOrderItem(row pgx.CollectableRow) (order.Item, error) {
	var item order.Item
	err := row.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.SKU, &item.Name,
		&item.UnitPrice, &item.Quantity, &item.LineTotal)
	return item, err
}

func scanSummary(row pgx.CollectableRow) (order.Summary, error) {
	var s order.Summary
	err := row.Scan(&s.OrderID, &s.UserID, &s.Status, &s.Subtotal, &s.Shipping, &s.Tax,
		&s.Discount, &s.Total, &s.Currency, &s.ItemCount, &s.UnitCount, &s.CreatedAt)
	return s, err
}
