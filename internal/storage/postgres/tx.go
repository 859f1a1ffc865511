package postgres

import (
	"github.com/jackc/pgx/v5"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/domain/shipment"
)

// pgTx adapts one pgx transaction to the ledger's typed views.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Products() product.TxView    { return &productView{tx: t.tx} }
func (t *pgTx) Inventory() inventory.TxView { return &inventoryView{tx: t.tx} }
func (t *pgTx) Coupons() coupon.TxView      { return &couponView{tx: t.tx} }
func (t *pgTx) Orders() order.TxView        { return &orderView{tx: t.tx} }
func (t *pgTx) Payments() payment.TxView    { return &paymentView{tx: t.tx} }
func (t *pgTx) Shipments() shipment.TxView  { return &shipmentView{tx: t.tx} }
