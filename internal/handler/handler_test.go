package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/fulfillment"
	"github.com/oakmart/fulfillment/internal/storage/memory"
)

type testEnv struct {
	mux       *http.ServeMux
	store     *memory.Store
	userID    uuid.UUID
	productID uuid.UUID
}

func newTestEnv(t *testing.T, codes *bloom.BloomFilter) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     memory.NewStore(),
		userID:    uuid.New(),
		productID: uuid.New(),
	}
	env.store.SeedProduct(product.Product{
		ID: env.productID, SKU: "SKU-1", Name: "Widget",
		Price: decimal.RequireFromString("9.50"), Active: true,
	})
	env.store.SeedLevel(inventory.Level{
		ProductID: env.productID, WarehouseID: uuid.New(), Quantity: 50,
	})

	retry := payment.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond, AttemptTimeout: time.Second}
	orch := fulfillment.New(env.store, payment.NewSandboxGateway(), inventory.SplitFit{}, retry)
	env.mux = New(orch, codes).Routes()
	return env
}

func (env *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) placeOrder(t *testing.T, qty int) map[string]any {
	t.Helper()
	body := fmt.Sprintf(`{"userId":%q,"items":[{"productId":%q,"quantity":%d}]}`,
		env.userID, env.productID, qty)
	rec := env.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var products []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	require.Len(t, products, 1)
	require.Equal(t, "SKU-1", products[0]["sku"])
	require.Equal(t, "9.50", products[0]["price"])
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.placeOrder(t, 2)
	require.Equal(t, "pending", resp["status"])
	require.Equal(t, "19.00", resp["subtotal"])
	require.Equal(t, "19.00", resp["total"])

	items, ok := resp["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
}

func TestPlaceOrderMalformedBody(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/orders", `{"userId": 42}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderEmptyItems(t *testing.T) {
	env := newTestEnv(t, nil)

	body := fmt.Sprintf(`{"userId":%q,"items":[]}`, env.userID)
	rec := env.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	env := newTestEnv(t, nil)

	body := fmt.Sprintf(`{"userId":%q,"items":[{"productId":%q,"quantity":999}]}`,
		env.userID, env.productID)
	rec := env.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestPlaceOrderUnknownCouponCode(t *testing.T) {
	env := newTestEnv(t, nil)

	body := fmt.Sprintf(`{"userId":%q,"items":[{"productId":%q,"quantity":1}],"couponCode":"NOPE"}`,
		env.userID, env.productID)
	rec := env.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCouponFastReject(t *testing.T) {
	filter := bloom.NewWithEstimates(100, 0.001)
	filter.AddString("SAVE10")

	env := newTestEnv(t, filter)
	env.store.SeedCoupon(coupon.Coupon{
		ID: uuid.New(), Code: "SAVE10", Active: true,
		DiscountType: coupon.DiscountPercent, DiscountValue: decimal.NewFromInt(10),
	})

	// Known code passes the filter and authorizes.
	body := fmt.Sprintf(`{"userId":%q,"items":[{"productId":%q,"quantity":1}],"couponCode":"save10"}`,
		env.userID, env.productID)
	rec := env.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Unknown code is rejected without reaching the authorizer.
	body = fmt.Sprintf(`{"userId":%q,"items":[{"productId":%q,"quantity":1}],"couponCode":"GHOST123"}`,
		env.userID, env.productID)
	rec = env.do(t, http.MethodPost, "/api/orders", body)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPayFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.placeOrder(t, 1)
	orderID := resp["id"].(string)

	rec := env.do(t, http.MethodPost, "/api/orders/"+orderID+"/pay", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var paid map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paid))
	require.Equal(t, "succeeded", paid["status"])
	require.True(t, strings.HasPrefix(paid["providerChargeId"].(string), "sbx_"))

	// Second pay attempt is an invalid lifecycle step.
	rec = env.do(t, http.MethodPost, "/api/orders/"+orderID+"/pay", "")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestShipAndDeliverFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.placeOrder(t, 2)
	orderID := resp["id"].(string)

	rec := env.do(t, http.MethodPost, "/api/orders/"+orderID+"/pay", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/orders/"+orderID+"/ship", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var shipped struct {
		Shipments []map[string]any `json:"shipments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shipped))
	require.Len(t, shipped.Shipments, 1)

	shipmentID := shipped.Shipments[0]["id"].(string)
	rec = env.do(t, http.MethodPost, "/api/orders/"+orderID+"/shipments/"+shipmentID+"/delivered", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/orders/"+orderID+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	require.Equal(t, "delivered", summary["status"])
	require.Equal(t, float64(2), summary["unitCount"])
}

func TestCancelFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.placeOrder(t, 1)
	orderID := resp["id"].(string)

	rec := env.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cancelled map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	require.Equal(t, "cancelled", cancelled["status"])
}

func TestSummaryUnknownOrder(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/orders/"+uuid.New().String()+"/summary", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidOrderID(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/orders/not-a-uuid/pay", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
