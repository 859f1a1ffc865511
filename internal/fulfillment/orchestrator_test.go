package fulfillment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/ledger"
	"github.com/oakmart/fulfillment/internal/storage/memory"
)

// fakeGateway is a scriptable payment gateway safe for concurrent use.
type fakeGateway struct {
	mu         sync.Mutex
	chargeErr  error
	refundErr  error
	charges    int
	refunds    []string
	nextCharge int
}

func (g *fakeGateway) Charge(context.Context, decimal.Decimal, string, uuid.UUID) (*payment.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges++
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	g.nextCharge++
	return &payment.ChargeResult{ChargeID: uuid.New().String()}, nil
}

func (g *fakeGateway) Refund(_ context.Context, chargeID string, _ decimal.Decimal) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, chargeID)
	return g.refundErr
}

type fixture struct {
	store   *memory.Store
	gateway *fakeGateway
	orch    *Orchestrator

	userID    uuid.UUID
	productID uuid.UUID
	warehouse uuid.UUID
}

func newFixture(t *testing.T, stock int) *fixture {
	t.Helper()

	f := &fixture{
		store:     memory.NewStore(),
		gateway:   &fakeGateway{},
		userID:    uuid.New(),
		productID: uuid.New(),
		warehouse: uuid.New(),
	}
	f.store.SeedProduct(product.Product{
		ID: f.productID, SKU: "SKU-1", Name: "Widget",
		Price: decimal.RequireFromString("9.50"), Active: true,
	})
	f.store.SeedLevel(inventory.Level{
		ProductID: f.productID, WarehouseID: f.warehouse, Quantity: stock,
	})

	retry := payment.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, AttemptTimeout: time.Second}
	f.orch = New(f.store, f.gateway, inventory.SplitFit{}, retry)
	return f
}

func (f *fixture) checkout(t *testing.T, qty int, couponCode string) *CheckoutResult {
	t.Helper()
	res, err := f.orch.Checkout(context.Background(), CheckoutRequest{
		UserID:     f.userID,
		Items:      []LineRequest{{ProductID: f.productID, Quantity: qty}},
		CouponCode: couponCode,
		Currency:   "USD",
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) orderStatus(t *testing.T, orderID uuid.UUID) order.Status {
	t.Helper()
	var status order.Status
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		ord, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		status = ord.Status
		return nil
	})
	require.NoError(t, err)
	return status
}

func (f *fixture) payments(t *testing.T, orderID uuid.UUID) []payment.Payment {
	t.Helper()
	var out []payment.Payment
	err := f.store.WithinTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		p, err := tx.Payments().ForOrder(ctx, orderID)
		out = p
		return err
	})
	require.NoError(t, err)
	return out
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newFixture(t, 10)

	res := f.checkout(t, 2, "")
	require.Equal(t, order.StatusPending, res.Order.Status)
	require.True(t, res.Order.Subtotal.Equal(decimal.RequireFromString("19.00")), "got %s", res.Order.Subtotal)
	require.True(t, res.Order.Total.Equal(res.Order.Subtotal))
	require.Len(t, res.Items, 1)
	require.Equal(t, "SKU-1", res.Items[0].SKU, "item snapshots the product")

	lvl, _ := f.store.LevelSnapshot(f.productID, f.warehouse)
	require.Equal(t, 10, lvl.Quantity, "checkout reserves, never decrements")
	require.Equal(t, 2, lvl.Reserved)
}

func TestCheckoutWithCoupon(t *testing.T) {
	f := newFixture(t, 10)
	couponID := uuid.New()
	f.store.SeedCoupon(coupon.Coupon{
		ID: couponID, Code: "SAVE10", Active: true,
		DiscountType: coupon.DiscountPercent, DiscountValue: decimal.NewFromInt(10),
	})

	res := f.checkout(t, 2, "save10")
	require.True(t, res.Order.Discount.Equal(decimal.RequireFromString("1.90")), "got %s", res.Order.Discount)
	require.True(t, res.Order.Total.Equal(decimal.RequireFromString("17.10")), "got %s", res.Order.Total)
	require.Equal(t, couponID, *res.Order.CouponID)
	require.Equal(t, 1, f.store.UsageCount(couponID), "usage row committed with the order")
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.orch.Checkout(context.Background(), CheckoutRequest{UserID: f.userID})
	require.ErrorIs(t, err, order.ErrEmptyItems)

	_, err = f.orch.Checkout(context.Background(), CheckoutRequest{
		UserID: f.userID,
		Items:  []LineRequest{{ProductID: f.productID, Quantity: 0}},
	})
	require.ErrorIs(t, err, order.ErrInvalidQuantity)
}

func TestCheckoutUnknownProduct(t *testing.T) {
	f := newFixture(t, 10)

	_, err := f.orch.Checkout(context.Background(), CheckoutRequest{
		UserID: f.userID,
		Items:  []LineRequest{{ProductID: uuid.New(), Quantity: 1}},
	})

	var notFound *product.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestCheckoutInactiveProduct(t *testing.T) {
	f := newFixture(t, 10)
	inactive := uuid.New()
	f.store.SeedProduct(product.Product{ID: inactive, SKU: "SKU-X", Name: "Gone", Price: decimal.NewFromInt(1)})

	_, err := f.orch.Checkout(context.Background(), CheckoutRequest{
		UserID: f.userID,
		Items:  []LineRequest{{ProductID: inactive, Quantity: 1}},
	})

	var inactiveErr *product.InactiveError
	require.ErrorAs(t, err, &inactiveErr)
}

func TestCheckoutFailureReleasesEarlierReservations(t *testing.T) {
	f := newFixture(t, 10)
	scarce := uuid.New()
	f.store.SeedProduct(product.Product{ID: scarce, SKU: "SKU-2", Name: "Rare", Price: decimal.NewFromInt(1), Active: true})
	f.store.SeedLevel(inventory.Level{ProductID: scarce, WarehouseID: f.warehouse, Quantity: 1})

	_, err := f.orch.Checkout(context.Background(), CheckoutRequest{
		UserID: f.userID,
		Items: []LineRequest{
			{ProductID: f.productID, Quantity: 2},
			{ProductID: scarce, Quantity: 5},
		},
	})

	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	lvl, _ := f.store.LevelSnapshot(f.productID, f.warehouse)
	require.Equal(t, 0, lvl.Reserved, "aborted checkout leaves no reservation behind")
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixture(t, 10)

	const attempts = 6
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Checkout(context.Background(), CheckoutRequest{
				UserID:   uuid.New(),
				Items:    []LineRequest{{ProductID: f.productID, Quantity: 2}},
				Currency: "USD",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			var stockErr *inventory.InsufficientStockError
			require.ErrorAs(t, err, &stockErr)
			short++
		}()
	}
	wg.Wait()

	require.Equal(t, 5, succeeded, "10 units cover exactly five 2-unit orders")
	require.Equal(t, 1, short)

	lvl, _ := f.store.LevelSnapshot(f.productID, f.warehouse)
	require.Equal(t, 10, lvl.Reserved)
	require.Equal(t, 0, lvl.Available())
}

func TestConcurrentCheckoutsRespectCouponCap(t *testing.T) {
	f := newFixture(t, 100)
	couponID := uuid.New()
	f.store.SeedCoupon(coupon.Coupon{
		ID: couponID, Code: "ONCE", Active: true,
		DiscountType: coupon.DiscountFixed, DiscountValue: decimal.NewFromInt(5),
		UsesAllowed: 1,
	})

	const attempts = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Checkout(context.Background(), CheckoutRequest{
				UserID:     uuid.New(),
				Items:      []LineRequest{{ProductID: f.productID, Quantity: 1}},
				CouponCode: "ONCE",
				Currency:   "USD",
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else {
				require.ErrorIs(t, err, coupon.ErrExhausted)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, succeeded, "single-use coupon authorizes exactly once")
	require.Equal(t, 1, f.store.UsageCount(couponID))
}

func TestPaySuccess(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 2, "")

	paid, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, payment.StatusSucceeded, paid.Status)
	require.True(t, paid.Amount.Equal(res.Order.Total))
	require.NotEmpty(t, paid.ProviderChargeID)

	require.Equal(t, order.StatusProcessing, f.orderStatus(t, res.Order.ID))
}

func TestPayDeclinedCancelsAndReleases(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 2, "")
	f.gateway.chargeErr = payment.ErrDeclined

	_, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.ErrorIs(t, err, payment.ErrDeclined)

	require.Equal(t, order.StatusCancelled, f.orderStatus(t, res.Order.ID))

	lvl, _ := f.store.LevelSnapshot(f.productID, f.warehouse)
	require.Equal(t, 0, lvl.Reserved, "declined payment releases the reservation")

	payments := f.payments(t, res.Order.ID)
	require.Len(t, payments, 1)
	require.Equal(t, payment.StatusFailed, payments[0].Status)
}

func TestPayTransientFailuresExhaustedCancels(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 1, "")
	f.gateway.chargeErr = &payment.TransientError{Err: errors.New("gateway flapping")}

	_, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.ErrorIs(t, err, payment.ErrDeclined)
	require.Equal(t, 2, f.gateway.charges, "policy retried before giving up")
	require.Equal(t, order.StatusCancelled, f.orderStatus(t, res.Order.ID))
}

func TestPayRequiresPendingOrder(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 1, "")

	_, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.NoError(t, err)

	_, err = f.orch.Pay(context.Background(), res.Order.ID)
	var transitionErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr, "paying twice is an invalid lifecycle step")
}

func TestShipCommitsReservations(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 3, "")
	_, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.NoError(t, err)

	shipments, err := f.orch.Ship(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Len(t, shipments, 1)
	require.Equal(t, f.warehouse, shipments[0].WarehouseID)

	require.Equal(t, order.StatusShipped, f.orderStatus(t, res.Order.ID))

	lvl, _ := f.store.LevelSnapshot(f.productID, f.warehouse)
	require.Equal(t, 7, lvl.Quantity, "shipping converts the pledge into a physical decrement")
	require.Equal(t, 0, lvl.Reserved)
}

func TestShipSplitsAcrossWarehouses(t *testing.T) {
	f := newFixture(t, 2)
	other := uuid.New()
	f.store.SeedLevel(inventory.Level{ProductID: f.productID, WarehouseID: other, Quantity: 3})

	res := f.checkout(t, 5, "")
	_, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.NoError(t, err)

	shipments, err := f.orch.Ship(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Len(t, shipments, 2, "one shipment per contributing warehouse")

	lvlA, _ := f.store.LevelSnapshot(f.productID, f.warehouse)
	lvlB, _ := f.store.LevelSnapshot(f.productID, other)
	require.Equal(t, 0, lvlA.Quantity+lvlA.Reserved)
	require.Equal(t, 0, lvlB.Reserved)
	require.Equal(t, 0, lvlA.Quantity+lvlB.Quantity, "all five units left the buildings")
}

func TestShipRequiresProcessing(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 1, "")

	_, err := f.orch.Ship(context.Background(), res.Order.ID)
	var transitionErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr, "unpaid orders do not ship")
}

func TestMarkDeliveredCompletesOrder(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 2, "")
	_, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.NoError(t, err)
	shipments, err := f.orch.Ship(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Len(t, shipments, 1)

	require.NoError(t, f.orch.MarkDelivered(context.Background(), res.Order.ID, shipments[0].ID))
	require.Equal(t, order.StatusDelivered, f.orderStatus(t, res.Order.ID))
}

func TestMarkDeliveredUnknownShipment(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 1, "")

	err := f.orch.MarkDelivered(context.Background(), res.Order.ID, uuid.New())
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCancelPendingReleasesStock(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 4, "")

	ord, err := f.orch.Cancel(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCancelled, ord.Status)
	require.Empty(t, f.gateway.refunds, "nothing was charged, nothing to refund")

	lvl, _ := f.store.LevelSnapshot(f.productID, f.warehouse)
	require.Equal(t, 10, lvl.Quantity)
	require.Equal(t, 0, lvl.Reserved)
}

func TestCancelPaidOrderRefunds(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 2, "")
	paid, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.NoError(t, err)

	ord, err := f.orch.Cancel(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusRefunded, ord.Status)
	require.Equal(t, []string{paid.ProviderChargeID}, f.gateway.refunds)

	payments := f.payments(t, res.Order.ID)
	require.Len(t, payments, 2)
	statuses := []payment.Status{payments[0].Status, payments[1].Status}
	require.Contains(t, statuses, payment.StatusSucceeded)
	require.Contains(t, statuses, payment.StatusRefunded)

	lvl, _ := f.store.LevelSnapshot(f.productID, f.warehouse)
	require.Equal(t, 0, lvl.Reserved)
}

func TestCancelShippedOrderFails(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 1, "")
	_, err := f.orch.Pay(context.Background(), res.Order.ID)
	require.NoError(t, err)
	_, err = f.orch.Ship(context.Background(), res.Order.ID)
	require.NoError(t, err)

	_, err = f.orch.Cancel(context.Background(), res.Order.ID)
	var transitionErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
}

func TestSummary(t *testing.T) {
	f := newFixture(t, 10)
	res := f.checkout(t, 3, "")

	s, err := f.orch.Summary(context.Background(), res.Order.ID)
	require.NoError(t, err)
	require.Equal(t, res.Order.ID, s.OrderID)
	require.Equal(t, 1, s.ItemCount)
	require.Equal(t, 3, s.UnitCount)
	require.True(t, s.Total.Equal(res.Order.Total))
}

// flakyStore fails the first conflicts calls with ledger.ErrConflict, then
// delegates.
type flakyStore struct {
	inner     ledger.Store
	mu        sync.Mutex
	conflicts int
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	s.mu.Lock()
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return errors.Wrap(ledger.ErrConflict, "simulated serialization failure")
	}
	s.mu.Unlock()
	return s.inner.WithinTx(ctx, fn)
}

func TestCheckoutRetriesConflicts(t *testing.T) {
	f := newFixture(t, 10)
	retry := payment.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond, AttemptTimeout: time.Second}
	orch := New(&flakyStore{inner: f.store, conflicts: 2}, f.gateway, inventory.SplitFit{}, retry)

	_, err := orch.Checkout(context.Background(), CheckoutRequest{
		UserID:   f.userID,
		Items:    []LineRequest{{ProductID: f.productID, Quantity: 1}},
		Currency: "USD",
	})
	require.NoError(t, err, "conflicts within the retry budget are invisible to callers")
}

func TestCheckoutConflictBudgetExhausted(t *testing.T) {
	f := newFixture(t, 10)
	retry := payment.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond, AttemptTimeout: time.Second}
	orch := New(&flakyStore{inner: f.store, conflicts: 100}, f.gateway, inventory.SplitFit{}, retry)

	_, err := orch.Checkout(context.Background(), CheckoutRequest{
		UserID:   f.userID,
		Items:    []LineRequest{{ProductID: f.productID, Quantity: 1}},
		Currency: "USD",
	})
	require.ErrorIs(t, err, ledger.ErrConflict)
}
