package inventory

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Allocation is a picker decision: take qty units from one warehouse.
type Allocation struct {
	WarehouseID uuid.UUID
	Quantity    int
}

// Picker chooses which warehouse(s) satisfy a requested quantity. The
// strategy is pluggable; the engine ships a single-warehouse first-fit and a
// greedy multi-warehouse split.
type Picker interface {
	Pick(ctx context.Context, tx TxView, productID uuid.UUID, qty int) ([]Allocation, error)
}

// FirstFit picks the first warehouse holding the full quantity.
type FirstFit struct{}

func (FirstFit) Pick(ctx context.Context, tx TxView, productID uuid.UUID, qty int) ([]Allocation, error) {
	levels, err := tx.LevelsForProduct(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "load stock levels")
	}

	available := 0
	for _, lvl := range levels {
		if lvl.Available() >= qty {
			return []Allocation{{WarehouseID: lvl.WarehouseID, Quantity: qty}}, nil
		}
		available += lvl.Available()
	}

	return nil, &InsufficientStockError{
		ProductID: productID,
		Requested: qty,
		Available: available,
	}
}

// SplitFit greedily drains warehouses in their deterministic order until the
// quantity is covered, splitting a single order item across warehouses when
// no single warehouse can satisfy it.
type SplitFit struct{}

func (SplitFit) Pick(ctx context.Context, tx TxView, productID uuid.UUID, qty int) ([]Allocation, error) {
	levels, err := tx.LevelsForProduct(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "load stock levels")
	}

	var (
		allocations []Allocation
		remaining   = qty
		available   int
	)
	for _, lvl := range levels {
		available += lvl.Available()
		if remaining == 0 {
			continue
		}
		take := min(remaining, lvl.Available())
		if take <= 0 {
			continue
		}
		allocations = append(allocations, Allocation{WarehouseID: lvl.WarehouseID, Quantity: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, &InsufficientStockError{
			ProductID: productID,
			Requested: qty,
			Available: available,
		}
	}
	return allocations, nil
}
