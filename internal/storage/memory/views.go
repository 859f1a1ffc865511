package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/domain/shipment"
)

type productView memTx

func (v *productView) List(_ context.Context) ([]product.Product, error) {
	return sortedByID(v.t.products), nil
}

func (v *productView) GetByIDs(_ context.Context, ids []uuid.UUID) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := v.t.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type inventoryView memTx

func (v *inventoryView) Level(_ context.Context, productID, warehouseID uuid.UUID) (*inventory.Level, error) {
	lvl, ok := v.t.levels[levelKey{productID, warehouseID}]
	if !ok {
		return nil, notFound("inventory level for product", productID)
	}
	return &lvl, nil
}

func (v *inventoryView) LevelsForProduct(_ context.Context, productID uuid.UUID) ([]inventory.Level, error) {
	var out []inventory.Level
	for key, lvl := range v.t.levels {
		if key.product == productID {
			out = append(out, lvl)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WarehouseID.String() < out[j].WarehouseID.String()
	})
	return out, nil
}

func (v *inventoryView) UpdateLevel(_ context.Context, lvl *inventory.Level) error {
	key := levelKey{lvl.ProductID, lvl.WarehouseID}
	if _, ok := v.t.levels[key]; !ok {
		return notFound("inventory level for product", lvl.ProductID)
	}
	v.t.levels[key] = *lvl
	return nil
}

func (v *inventoryView) InsertReservation(_ context.Context, r *inventory.Reservation) error {
	v.t.reservations[r.ID] = *r
	return nil
}

func (v *inventoryView) ReservationsForOrder(_ context.Context, orderID uuid.UUID) ([]inventory.Reservation, error) {
	var out []inventory.Reservation
	for _, r := range sortedByID(v.t.reservations) {
		if r.OrderID == orderID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (v *inventoryView) UpdateReservation(_ context.Context, r *inventory.Reservation) error {
	if _, ok := v.t.reservations[r.ID]; !ok {
		return notFound("reservation", r.ID)
	}
	v.t.reservations[r.ID] = *r
	return nil
}

type couponView memTx

func (v *couponView) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range v.t.coupons {
		if strings.EqualFold(c.Code, code) {
			return &c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (v *couponView) CountUsages(_ context.Context, couponID uuid.UUID) (int, error) {
	n := 0
	for _, u := range v.t.usages {
		if u.CouponID == couponID {
			n++
		}
	}
	return n, nil
}

func (v *couponView) CountUserUsages(_ context.Context, couponID, userID uuid.UUID) (int, error) {
	n := 0
	for _, u := range v.t.usages {
		if u.CouponID == couponID && u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (v *couponView) InsertUsage(_ context.Context, u *coupon.Usage) error {
	row := *u
	if row.UsedAt.IsZero() {
		row.UsedAt = v.now()
	}
	v.t.usages[row.ID] = row
	return nil
}

type orderView memTx

func (v *orderView) Insert(_ context.Context, o *order.Order) error {
	row := *o
	if row.CreatedAt.IsZero() {
		row.CreatedAt = v.now()
		row.UpdatedAt = row.CreatedAt
	}
	v.t.orders[row.ID] = row
	o.CreatedAt = row.CreatedAt
	o.UpdatedAt = row.UpdatedAt
	return nil
}

func (v *orderView) InsertItem(_ context.Context, item *order.Item) error {
	v.t.orderItems[item.ID] = *item
	return nil
}

func (v *orderView) Get(_ context.Context, id uuid.UUID) (*order.Order, error) {
	o, ok := v.t.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}
	return &o, nil
}

func (v *orderView) Items(_ context.Context, orderID uuid.UUID) ([]order.Item, error) {
	var out []order.Item
	for _, item := range sortedByID(v.t.orderItems) {
		if item.OrderID == orderID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (v *orderView) UpdateStatus(_ context.Context, id uuid.UUID, status order.Status) error {
	o, ok := v.t.orders[id]
	if !ok {
		return notFound("order", id)
	}
	o.Status = status
	o.UpdatedAt = v.now()
	v.t.orders[id] = o
	return nil
}

func (v *orderView) Summary(ctx context.Context, id uuid.UUID) (*order.Summary, error) {
	o, ok := v.t.orders[id]
	if !ok {
		return nil, notFound("order", id)
	}

	s := &order.Summary{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Status:    o.Status,
		Subtotal:  o.Subtotal,
		Shipping:  o.Shipping,
		Tax:       o.Tax,
		Discount:  o.Discount,
		Total:     o.Total,
		Currency:  o.Currency,
		CreatedAt: o.CreatedAt,
	}
	for _, item := range v.t.orderItems {
		if item.OrderID == id {
			s.ItemCount++
			s.UnitCount += item.Quantity
		}
	}
	return s, nil
}

type paymentView memTx

func (v *paymentView) Insert(_ context.Context, p *payment.Payment) error {
	row := *p
	if row.CreatedAt.IsZero() {
		row.CreatedAt = v.now()
	}
	v.t.payments[row.ID] = row
	p.CreatedAt = row.CreatedAt
	return nil
}

func (v *paymentView) ForOrder(_ context.Context, orderID uuid.UUID) ([]payment.Payment, error) {
	var out []payment.Payment
	for _, p := range sortedByID(v.t.payments) {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

type shipmentView memTx

func (v *shipmentView) Insert(_ context.Context, s *shipment.Shipment) error {
	row := *s
	if row.CreatedAt.IsZero() {
		row.CreatedAt = v.now()
	}
	v.t.shipments[row.ID] = row
	s.CreatedAt = row.CreatedAt
	return nil
}

func (v *shipmentView) InsertItem(_ context.Context, item *shipment.Item) error {
	v.t.shipmentItems[item.ID] = *item
	return nil
}

func (v *shipmentView) ForOrder(_ context.Context, orderID uuid.UUID) ([]shipment.Shipment, error) {
	var out []shipment.Shipment
	for _, s := range sortedByID(v.t.shipments) {
		if s.OrderID == orderID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (v *shipmentView) Items(_ context.Context, shipmentID uuid.UUID) ([]shipment.Item, error) {
	var out []shipment.Item
	for _, item := range sortedByID(v.t.shipmentItems) {
		if item.ShipmentID == shipmentID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (v *shipmentView) UpdateStatus(_ context.Context, id uuid.UUID, status shipment.Status) error {
	s, ok := v.t.shipments[id]
	if !ok {
		return notFound("shipment", id)
	}
	s.Status = status
	v.t.shipments[id] = s
	return nil
}
