package product

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NotFoundError indicates a requested product does not exist.
type NotFoundError struct {
	ProductID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return "product " + e.ProductID.String() + " not found"
}

// InactiveError indicates a product exists but is not available for sale.
type InactiveError struct {
	ProductID uuid.UUID
	SKU       string
}

func (e *InactiveError) Error() string {
	return "product " + e.SKU + " is not active"
}

// Product represents a catalog item available for purchase. The SKU is
// immutable once created; price changes bump UpdatedAt.
type Product struct {
	ID        uuid.UUID
	SKU       string
	Name      string
	Price     decimal.Decimal
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TxView defines read operations for the product catalog inside a ledger
// transaction. The engine only reads products; catalog management belongs to
// an external service.
type TxView interface {
	List(ctx context.Context) ([]Product, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
}
