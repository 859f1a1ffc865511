package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/jx"
	"github.com/google/uuid"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
)

// ListProducts serves the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.orch.Products(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeProducts(&e, products)
	writeJSON(w, http.StatusOK, &e)
}

// PlaceOrder creates an order: product snapshots, inventory reservations, and
// optional coupon authorization, all or nothing.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}

	req, err := decodeCheckout(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Codes absent from the filter definitely do not exist; skip the
	// transaction for them. Codes are stored upper-cased, matching the
	// case-insensitive lookup.
	if req.CouponCode != "" && h.codes != nil && !h.codes.TestString(strings.ToUpper(req.CouponCode)) {
		respondError(w, r, coupon.ErrNotFound)
		return
	}

	res, err := h.orch.Checkout(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, res.Order, res.Items)
	writeJSON(w, http.StatusCreated, &e)
}

// PayOrder charges the order total and moves the order to processing.
func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	paid, err := h.orch.Pay(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodePayment(&e, paid)
	writeJSON(w, http.StatusOK, &e)
}

// ShipOrder splits the order into per-warehouse shipments and commits the
// backing reservations.
func (h *Handler) ShipOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	shipments, err := h.orch.Ship(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeShipments(&e, shipments)
	writeJSON(w, http.StatusOK, &e)
}

// CancelOrder aborts the order, releasing reservations and refunding any
// successful payment.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	ord, err := h.orch.Cancel(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, ord, nil)
	writeJSON(w, http.StatusOK, &e)
}

// MarkDelivered records a delivered shipment.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	shipmentID, ok := pathUUID(w, r, "shipmentID")
	if !ok {
		return
	}

	if err := h.orch.MarkDelivered(r.Context(), orderID, shipmentID); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OrderSummary serves the reporting projection for one order.
func (h *Handler) OrderSummary(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.orch.Summary(r.Context(), orderID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeSummary(&e, summary)
	writeJSON(w, http.StatusOK, &e)
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
