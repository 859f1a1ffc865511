// Package memory provides an in-memory ledger store. Transactions run one at
// a time against a copy-on-write snapshot of the tables: fn mutates the
// working copy and the copy is swapped in atomically on success, so a failed
// transaction leaves no partial state behind. The store-wide mutex gives the
// same serialization guarantee the PostgreSQL store gets from row locks.
//
// It backs unit and concurrency tests and makes a self-contained demo server
// possible without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/domain/shipment"
	"github.com/oakmart/fulfillment/internal/ledger"
)

type levelKey struct {
	product   uuid.UUID
	warehouse uuid.UUID
}

// tables holds every entity table. Values are stored by value so cloning a
// map clones its rows.
type tables struct {
	products      map[uuid.UUID]product.Product
	levels        map[levelKey]inventory.Level
	reservations  map[uuid.UUID]inventory.Reservation
	coupons       map[uuid.UUID]coupon.Coupon
	usages        map[uuid.UUID]coupon.Usage
	orders        map[uuid.UUID]order.Order
	orderItems    map[uuid.UUID]order.Item
	payments      map[uuid.UUID]payment.Payment
	shipments     map[uuid.UUID]shipment.Shipment
	shipmentItems map[uuid.UUID]shipment.Item
}

func newTables() *tables {
	return &tables{
		products:      make(map[uuid.UUID]product.Product),
		levels:        make(map[levelKey]inventory.Level),
		reservations:  make(map[uuid.UUID]inventory.Reservation),
		coupons:       make(map[uuid.UUID]coupon.Coupon),
		usages:        make(map[uuid.UUID]coupon.Usage),
		orders:        make(map[uuid.UUID]order.Order),
		orderItems:    make(map[uuid.UUID]order.Item),
		payments:      make(map[uuid.UUID]payment.Payment),
		shipments:     make(map[uuid.UUID]shipment.Shipment),
		shipmentItems: make(map[uuid.UUID]shipment.Item),
	}
}

func (t *tables) clone() *tables {
	c := newTables()
	for k, v := range t.products {
		c.products[k] = v
	}
	for k, v := range t.levels {
		c.levels[k] = v
	}
	for k, v := range t.reservations {
		c.reservations[k] = v
	}
	for k, v := range t.coupons {
		c.coupons[k] = v
	}
	for k, v := range t.usages {
		c.usages[k] = v
	}
	for k, v := range t.orders {
		c.orders[k] = v
	}
	for k, v := range t.orderItems {
		c.orderItems[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	for k, v := range t.shipments {
		c.shipments[k] = v
	}
	for k, v := range t.shipmentItems {
		c.shipmentItems[k] = v
	}
	return c
}

var _ ledger.Store = (*Store)(nil)

// Store is the in-memory ledger store.
type Store struct {
	mu   sync.Mutex
	data *tables
	now  func() time.Time
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{data: newTables(), now: time.Now}
}

// WithinTx runs fn against a working copy of the tables and swaps the copy in
// on success. Transactions serialize on the store mutex.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := s.data.clone()
	if err := fn(ctx, &memTx{t: working, now: s.now}); err != nil {
		return err
	}
	s.data = working
	return nil
}

// Seed helpers populate base data outside any transaction. Test and demo
// setup only.

func (s *Store) SeedProduct(p product.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.ID] = p
}

func (s *Store) SeedLevel(lvl inventory.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.levels[levelKey{lvl.ProductID, lvl.WarehouseID}] = lvl
}

func (s *Store) SeedCoupon(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.coupons[c.ID] = c
}

// LevelSnapshot returns a copy of the stock row for assertions.
func (s *Store) LevelSnapshot(productID, warehouseID uuid.UUID) (inventory.Level, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lvl, ok := s.data.levels[levelKey{productID, warehouseID}]
	return lvl, ok
}

// UsageCount returns the number of committed usage rows for a coupon.
func (s *Store) UsageCount(couponID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.data.usages {
		if u.CouponID == couponID {
			n++
		}
	}
	return n
}

// memTx is the transaction handle over the working table copy.
type memTx struct {
	t   *tables
	now func() time.Time
}

func (tx *memTx) Products() product.TxView    { return (*productView)(tx) }
func (tx *memTx) Inventory() inventory.TxView { return (*inventoryView)(tx) }
func (tx *memTx) Coupons() coupon.TxView      { return (*couponView)(tx) }
func (tx *memTx) Orders() order.TxView        { return (*orderView)(tx) }
func (tx *memTx) Payments() payment.TxView    { return (*paymentView)(tx) }
func (tx *memTx) Shipments() shipment.TxView  { return (*shipmentView)(tx) }

// sortedByID returns map values ordered by their uuid key string for
// deterministic reads.
func sortedByID[V any](m map[uuid.UUID]V) []V {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}

func notFound(entity string, key uuid.UUID) error {
	return errors.Wrapf(ledger.ErrNotFound, "%s %s", entity, key)
}
