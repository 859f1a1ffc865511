// Package handler exposes the fulfillment engine over HTTP. Request and
// response bodies are encoded with jx; domain errors map onto 4xx statuses so
// clients can tell a rejected order from an engine failure.
package handler

import (
	"io"
	"net/http"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/oakmart/fulfillment/internal/fulfillment"
)

// maxBodySize bounds request bodies to keep a hostile client from exhausting
// memory.
const maxBodySize = 1 << 20

// Handler serves the order API.
type Handler struct {
	orch *fulfillment.Orchestrator

	// codes, when set, fast-rejects coupon codes that cannot possibly exist
	// before the checkout transaction opens. False positives fall through to
	// the authorizer; false negatives cannot happen.
	codes *bloom.BloomFilter
}

// New constructs a Handler. codes may be nil to disable coupon fast-reject.
func New(orch *fulfillment.Orchestrator, codes *bloom.BloomFilter) *Handler {
	return &Handler{orch: orch, codes: codes}
}

// Routes returns the API route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", h.ListProducts)
	mux.HandleFunc("POST /api/orders", h.PlaceOrder)
	mux.HandleFunc("POST /api/orders/{id}/pay", h.PayOrder)
	mux.HandleFunc("POST /api/orders/{id}/ship", h.ShipOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", h.CancelOrder)
	mux.HandleFunc("POST /api/orders/{id}/shipments/{shipmentID}/delivered", h.MarkDelivered)
	mux.HandleFunc("GET /api/orders/{id}/summary", h.OrderSummary)
	return mux
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read request body")
		return nil, false
	}
	return body, true
}
