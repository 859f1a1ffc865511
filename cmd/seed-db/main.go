// Binary seed-db runs migrations and loads demo catalog data: products,
// warehouses, per-warehouse stock levels, and a few coupons.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/oakmart/fulfillment/internal/storage/postgres"
)

type seedFile struct {
	Products []struct {
		ID    uuid.UUID       `json:"id"`
		SKU   string          `json:"sku"`
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	} `json:"products"`
	Warehouses []struct {
		ID   uuid.UUID `json:"id"`
		Code string    `json:"code"`
		Name string    `json:"name"`
	} `json:"warehouses"`
	Levels []struct {
		ProductID   uuid.UUID `json:"productId"`
		WarehouseID uuid.UUID `json:"warehouseId"`
		Quantity    int       `json:"quantity"`
	} `json:"levels"`
	Coupons []struct {
		Code          string          `json:"code"`
		DiscountType  string          `json:"discountType"`
		DiscountValue decimal.Decimal `json:"discountValue"`
		UsesAllowed   int             `json:"usesAllowed"`
		UsesPerUser   int             `json:"usesPerUser"`
	} `json:"coupons"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to seed JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAll(ctx, pool, seed); err != nil {
		return err
	}
	return nil
}

const (
	upsertProductSQL = `INSERT INTO products (id, sku, name, price, active)
		VALUES ($1, $2, $3, $4, TRUE)
		ON CONFLICT (sku) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price, active = TRUE`

	upsertWarehouseSQL = `INSERT INTO warehouses (id, code, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name`

	upsertLevelSQL = `INSERT INTO inventory_levels (product_id, warehouse_id, quantity, reserved)
		VALUES ($1, $2, $3, 0)
		ON CONFLICT (product_id, warehouse_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	upsertSeedCouponSQL = `INSERT INTO coupons
		(id, code, discount_type, discount_value, uses_allowed, uses_per_user, active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			discount_type  = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			uses_allowed   = EXCLUDED.uses_allowed,
			uses_per_user  = EXCLUDED.uses_per_user,
			active         = TRUE`
)

func seedAll(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	slog.Info("upserting products", slog.Int("count", len(seed.Products)))
	for _, p := range seed.Products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.SKU, p.Name, p.Price); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.SKU)
		}
	}

	slog.Info("upserting warehouses", slog.Int("count", len(seed.Warehouses)))
	for _, w := range seed.Warehouses {
		if _, err := pool.Exec(ctx, upsertWarehouseSQL, w.ID, w.Code, w.Name); err != nil {
			return errors.Wrapf(err, "upsert warehouse %s", w.Code)
		}
	}

	slog.Info("upserting stock levels", slog.Int("count", len(seed.Levels)))
	for _, lvl := range seed.Levels {
		if _, err := pool.Exec(ctx, upsertLevelSQL, lvl.ProductID, lvl.WarehouseID, lvl.Quantity); err != nil {
			return errors.Wrapf(err, "upsert level for product %s", lvl.ProductID)
		}
	}

	slog.Info("upserting coupons", slog.Int("count", len(seed.Coupons)))
	for _, c := range seed.Coupons {
		if _, err := pool.Exec(ctx, upsertSeedCouponSQL,
			uuid.New(), c.Code, c.DiscountType, c.DiscountValue, c.UsesAllowed, c.UsesPerUser); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
	}

	return nil
}
