package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/oakmart/fulfillment/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, sku, name, price, active, created_at, updated_at
		FROM products ORDER BY sku`

	getProductsByIDsSQL = `SELECT id, sku, name, price, active, created_at, updated_at
		FROM products WHERE id = ANY($1)`
)

type productView struct {
	tx pgx.Tx
}

func (v *productView) List(ctx context.Context) ([]product.Product, error) {
	rows, err := v.tx.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func (v *productView) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]product.Product, error) {
	rows, err := v.tx.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
