package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oakmart/fulfillment/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments
		(id, order_id, status, amount, currency, provider_charge_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING created_at`

	paymentsForOrderSQL = `SELECT id, order_id, status, amount, currency,
			COALESCE(provider_charge_id, ''), created_at
		FROM payments
		WHERE order_id = $1
		ORDER BY created_at, id`
)

type paymentView struct {
	tx pgx.Tx
}

func (v *paymentView) Insert(ctx context.Context, p *payment.Payment) error {
	err := v.tx.QueryRow(ctx, insertPaymentSQL,
		p.ID, p.OrderID, p.Status, p.Amount, p.Currency, p.ProviderChargeID,
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting payment: %w", err)
	}
	return nil
}

func (v *paymentView) ForOrder(ctx context.Context, orderID uuid.UUID) ([]payment.Payment, error) {
	rows, err := v.tx.Query(ctx, paymentsForOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("getting payments: %w", err)
	}
	return pgx.CollectRows(rows, scanPayment)
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var p payment.Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.Status, &p.Amount, &p.Currency,
		&p.ProviderChargeID, &p.CreatedAt)
	return p, err
}
