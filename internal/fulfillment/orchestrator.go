// Package fulfillment drives orders through their lifecycle: checkout with
// atomic inventory reservation and coupon accounting, payment with bounded
// retries, shipment with reservation commit, and cancellation with refund.
package fulfillment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/domain/shipment"
	"github.com/oakmart/fulfillment/internal/ledger"
)

// conflictRetries bounds internal retries of transactions aborted by
// concurrent modification before the conflict is surfaced to the caller.
const conflictRetries = 3

// Orchestrator coordinates the ledger store, the inventory reservation
// manager, the coupon authorizer, the shipment splitter, and the external
// payment gateway. The gateway is always called outside ledger transactions
// so a slow provider never stalls other checkouts on row locks.
type Orchestrator struct {
	store    ledger.Store
	gateway  payment.Gateway
	picker   inventory.Picker
	retry    payment.RetryPolicy
	inv      *inventory.Manager
	coupons  *coupon.Authorizer
	splitter *shipment.Splitter
}

// New creates an Orchestrator. The picker decides how order item quantities
// map onto warehouses; the retry policy governs gateway calls.
func New(store ledger.Store, gateway payment.Gateway, picker inventory.Picker, retry payment.RetryPolicy) *Orchestrator {
	return &Orchestrator{
		store:    store,
		gateway:  gateway,
		picker:   picker,
		retry:    retry,
		inv:      inventory.NewManager(),
		coupons:  coupon.NewAuthorizer(),
		splitter: shipment.NewSplitter(),
	}
}

// LineRequest is one requested order line.
type LineRequest struct {
	ProductID uuid.UUID
	Quantity  int
}

// CheckoutRequest holds the input for creating an order. Shipping and Tax are
// supplied by external services; the engine only folds them into the total.
type CheckoutRequest struct {
	UserID            uuid.UUID
	Items             []LineRequest
	CouponCode        string
	Currency          string
	Shipping          decimal.Decimal
	Tax               decimal.Decimal
	ShippingAddressID *uuid.UUID
	BillingAddressID  *uuid.UUID
}

// CheckoutResult is the outcome of a successful checkout.
type CheckoutResult struct {
	Order *order.Order
	Items []order.Item
}

// Checkout validates the request and creates the order in a single ledger
// transaction: product snapshots, per-item inventory reservations, optional
// coupon authorization plus usage record, and the persisted order rows. Any
// reservation or coupon failure aborts the whole transaction, releasing
// reservations already taken for earlier items in the same request.
func (o *Orchestrator) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, order.ErrEmptyItems
	}
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return nil, errors.Wrapf(order.ErrInvalidQuantity, "product %s", line.ProductID)
		}
	}

	var result *CheckoutResult
	err := o.withinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		res, err := o.checkout(ctx, tx, req)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) checkout(ctx context.Context, tx ledger.Tx, req CheckoutRequest) (*CheckoutResult, error) {
	ids := make([]uuid.UUID, len(req.Items))
	for i, line := range req.Items {
		ids[i] = line.ProductID
	}

	fetched, err := tx.Products().GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[uuid.UUID]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Snapshot sku, name, and unit price per line; compute the subtotal.
	items := make([]order.Item, len(req.Items))
	subtotal := decimal.Zero
	for i, line := range req.Items {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, &product.NotFoundError{ProductID: line.ProductID}
		}
		if !p.Active {
			return nil, &product.InactiveError{ProductID: p.ID, SKU: p.SKU}
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		items[i] = order.Item{
			ID:        uuid.New(),
			ProductID: p.ID,
			SKU:       p.SKU,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
			LineTotal: lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}
	subtotal = subtotal.Round(2)

	// Authorize the coupon under its row lock before any rows are written.
	discount := decimal.Zero
	var couponID *uuid.UUID
	if req.CouponCode != "" {
		auth, err := o.coupons.Authorize(ctx, tx.Coupons(), req.CouponCode, req.UserID, subtotal)
		if err != nil {
			return nil, err
		}
		discount = auth.Discount
		couponID = &auth.Coupon.ID
	}

	ord := &order.Order{
		ID:                uuid.New(),
		UserID:            req.UserID,
		Status:            order.StatusPending,
		Subtotal:          subtotal,
		Shipping:          req.Shipping.Round(2),
		Tax:               req.Tax.Round(2),
		Discount:          discount,
		Total:             subtotal.Add(req.Shipping).Add(req.Tax).Sub(discount).Round(2),
		Currency:          req.Currency,
		CouponID:          couponID,
		ShippingAddressID: req.ShippingAddressID,
		BillingAddressID:  req.BillingAddressID,
	}
	if err := tx.Orders().Insert(ctx, ord); err != nil {
		return nil, errors.Wrap(err, "insert order")
	}

	for i := range items {
		items[i].OrderID = ord.ID
		if err := tx.Orders().InsertItem(ctx, &items[i]); err != nil {
			return nil, errors.Wrap(err, "insert order item")
		}

		allocations, err := o.picker.Pick(ctx, tx.Inventory(), items[i].ProductID, items[i].Quantity)
		if err != nil {
			return nil, err
		}
		for _, alloc := range allocations {
			if err := o.inv.Reserve(ctx, tx.Inventory(), items[i].ProductID, alloc.WarehouseID, alloc.Quantity); err != nil {
				return nil, err
			}
			r := &inventory.Reservation{
				ID:          uuid.New(),
				OrderID:     ord.ID,
				OrderItemID: items[i].ID,
				ProductID:   items[i].ProductID,
				WarehouseID: alloc.WarehouseID,
				Quantity:    alloc.Quantity,
				State:       inventory.StateReserved,
			}
			if err := tx.Inventory().InsertReservation(ctx, r); err != nil {
				return nil, errors.Wrap(err, "insert reservation")
			}
		}
	}

	// The usage row commits or rolls back together with the order, so a
	// coupon use can never be spent without a matching order.
	if couponID != nil {
		if err := o.coupons.RecordUsage(ctx, tx.Coupons(), *couponID, req.UserID); err != nil {
			return nil, err
		}
	}

	return &CheckoutResult{Order: ord, Items: items}, nil
}

// Pay charges the order total via the gateway and advances the order to
// processing. The order row is persisted in pending before the blocking
// gateway call, so no ledger locks are held while the provider is slow.
// Declined (or retry-exhausted) charges cancel the order and release its
// reservations. Duplicate success notifications for the same provider charge
// id merge into the existing payment row.
func (o *Orchestrator) Pay(ctx context.Context, orderID uuid.UUID) (*payment.Payment, error) {
	var (
		amount   decimal.Decimal
		currency string
	)
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		ord, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if ord.Status != order.StatusPending {
			return &order.InvalidTransitionError{OrderID: orderID, From: ord.Status, To: order.StatusProcessing}
		}
		amount = ord.Total
		currency = ord.Currency
		return nil
	})
	if err != nil {
		return nil, err
	}

	charge, chargeErr := o.retry.Charge(ctx, o.gateway, amount, currency, orderID)
	if chargeErr != nil {
		if errors.Is(chargeErr, payment.ErrDeclined) {
			if err := o.cancelDeclined(ctx, orderID, amount, currency); err != nil {
				return nil, err
			}
		}
		return nil, chargeErr
	}

	var paid *payment.Payment
	err = o.withinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		ord, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		existing, err := tx.Payments().ForOrder(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "load payments")
		}
		for i := range existing {
			if existing[i].ProviderChargeID == charge.ChargeID && existing[i].Status == payment.StatusSucceeded {
				paid = &existing[i]
				return nil
			}
		}

		if ord.Status != order.StatusPending {
			return &order.InvalidTransitionError{OrderID: orderID, From: ord.Status, To: order.StatusProcessing}
		}

		p := &payment.Payment{
			ID:               uuid.New(),
			OrderID:          orderID,
			Status:           payment.StatusSucceeded,
			Amount:           amount,
			Currency:         currency,
			ProviderChargeID: charge.ChargeID,
		}
		if err := tx.Payments().Insert(ctx, p); err != nil {
			return errors.Wrap(err, "insert payment")
		}
		if err := tx.Orders().UpdateStatus(ctx, orderID, order.StatusProcessing); err != nil {
			return errors.Wrap(err, "update order status")
		}
		paid = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// cancelDeclined records the failed attempt, releases the order's
// reservations, and cancels the order.
func (o *Orchestrator) cancelDeclined(ctx context.Context, orderID uuid.UUID, amount decimal.Decimal, currency string) error {
	return o.withinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		ord, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		p := &payment.Payment{
			ID:       uuid.New(),
			OrderID:  orderID,
			Status:   payment.StatusFailed,
			Amount:   amount,
			Currency: currency,
		}
		if err := tx.Payments().Insert(ctx, p); err != nil {
			return errors.Wrap(err, "insert payment")
		}

		if ord.Status != order.StatusPending {
			return nil
		}
		if err := o.inv.ReleaseAll(ctx, tx.Inventory(), orderID); err != nil {
			return err
		}
		return tx.Orders().UpdateStatus(ctx, orderID, order.StatusCancelled)
	})
}

// Ship allocates the order's items to shipments via the splitter and commits
// the matching reservations, all in one transaction: physical stock leaves
// inventory only when goods actually ship.
func (o *Orchestrator) Ship(ctx context.Context, orderID uuid.UUID) ([]shipment.Shipment, error) {
	var created []shipment.Shipment
	err := o.withinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		created = created[:0]

		ord, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if !ord.Status.CanTransition(order.StatusShipped) {
			return &order.InvalidTransitionError{OrderID: orderID, From: ord.Status, To: order.StatusShipped}
		}

		items, err := tx.Orders().Items(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "load order items")
		}
		reservations, err := tx.Inventory().ReservationsForOrder(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "load reservations")
		}
		byID := make(map[uuid.UUID]*inventory.Reservation, len(reservations))
		for i := range reservations {
			byID[reservations[i].ID] = &reservations[i]
		}

		plans, err := o.splitter.Allocate(items, reservations)
		if err != nil {
			return err
		}

		for _, plan := range plans {
			sh := shipment.Shipment{
				ID:          uuid.New(),
				OrderID:     orderID,
				WarehouseID: plan.WarehouseID,
				Status:      shipment.StatusCreated,
			}
			if err := tx.Shipments().Insert(ctx, &sh); err != nil {
				return errors.Wrap(err, "insert shipment")
			}

			for _, line := range plan.Lines {
				if err := tx.Shipments().InsertItem(ctx, &shipment.Item{
					ID:          uuid.New(),
					ShipmentID:  sh.ID,
					OrderItemID: line.OrderItemID,
					Quantity:    line.Quantity,
				}); err != nil {
					return errors.Wrap(err, "insert shipment item")
				}
				if err := o.inv.Commit(ctx, tx.Inventory(), byID[line.ReservationID]); err != nil {
					return err
				}
			}
			created = append(created, sh)
		}

		return tx.Orders().UpdateStatus(ctx, orderID, order.StatusShipped)
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// MarkDelivered records a delivered shipment; once every non-cancelled
// shipment of the order is delivered, the order itself becomes delivered.
func (o *Orchestrator) MarkDelivered(ctx context.Context, orderID, shipmentID uuid.UUID) error {
	return o.withinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		ord, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}

		shipments, err := tx.Shipments().ForOrder(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "load shipments")
		}

		allDelivered := true
		found := false
		for i := range shipments {
			if shipments[i].ID == shipmentID {
				found = true
				shipments[i].Status = shipment.StatusDelivered
			}
			if shipments[i].Status != shipment.StatusDelivered && shipments[i].Status != shipment.StatusCancelled {
				allDelivered = false
			}
		}
		if !found {
			return errors.Wrapf(ledger.ErrNotFound, "shipment %s of order %s", shipmentID, orderID)
		}

		if err := tx.Shipments().UpdateStatus(ctx, shipmentID, shipment.StatusDelivered); err != nil {
			return errors.Wrap(err, "update shipment status")
		}

		if allDelivered && ord.Status == order.StatusShipped {
			return tx.Orders().UpdateStatus(ctx, orderID, order.StatusDelivered)
		}
		return nil
	})
}

// Cancel aborts an order from pending or processing. Uncommitted
// reservations are released; when a successful payment exists the gateway
// refund runs outside ledger locks and the order ends refunded, otherwise it
// ends cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	var (
		result   *order.Order
		toRefund *payment.Payment
	)
	err := o.withinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		toRefund = nil

		ord, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if ord.Status != order.StatusPending && ord.Status != order.StatusProcessing {
			return &order.InvalidTransitionError{OrderID: orderID, From: ord.Status, To: order.StatusCancelled}
		}

		if err := o.inv.ReleaseAll(ctx, tx.Inventory(), orderID); err != nil {
			return err
		}

		payments, err := tx.Payments().ForOrder(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "load payments")
		}
		toRefund = payment.LastSucceeded(payments)

		if toRefund == nil {
			if err := tx.Orders().UpdateStatus(ctx, orderID, order.StatusCancelled); err != nil {
				return errors.Wrap(err, "update order status")
			}
			ord.Status = order.StatusCancelled
		}
		result = ord
		return nil
	})
	if err != nil {
		return nil, err
	}
	if toRefund == nil {
		return result, nil
	}

	if err := o.retry.Refund(ctx, o.gateway, toRefund.ProviderChargeID, toRefund.Amount); err != nil {
		return nil, errors.Wrap(err, "refund")
	}

	err = o.withinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		p := &payment.Payment{
			ID:               uuid.New(),
			OrderID:          orderID,
			Status:           payment.StatusRefunded,
			Amount:           toRefund.Amount,
			Currency:         toRefund.Currency,
			ProviderChargeID: toRefund.ProviderChargeID,
		}
		if err := tx.Payments().Insert(ctx, p); err != nil {
			return errors.Wrap(err, "insert refund payment")
		}
		if err := tx.Orders().UpdateStatus(ctx, orderID, order.StatusRefunded); err != nil {
			return errors.Wrap(err, "update order status")
		}
		result.Status = order.StatusRefunded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Products lists the catalog.
func (o *Orchestrator) Products(ctx context.Context) ([]product.Product, error) {
	var products []product.Product
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		list, err := tx.Products().List(ctx)
		if err != nil {
			return err
		}
		products = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// Summary returns the read-only reporting projection for one order.
func (o *Orchestrator) Summary(ctx context.Context, orderID uuid.UUID) (*order.Summary, error) {
	var summary *order.Summary
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		s, err := tx.Orders().Summary(ctx, orderID)
		if err != nil {
			return err
		}
		summary = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// withinTx runs fn in a ledger transaction, retrying transactions aborted by
// concurrent modification up to conflictRetries times.
func (o *Orchestrator) withinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	var err error
	for attempt := 0; attempt <= conflictRetries; attempt++ {
		err = o.store.WithinTx(ctx, fn)
		if err == nil || !errors.Is(err, ledger.ErrConflict) {
			return err
		}
	}
	return err
}
