package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/oakmart/fulfillment/internal/domain/coupon"
	"github.com/oakmart/fulfillment/internal/domain/inventory"
	"github.com/oakmart/fulfillment/internal/domain/order"
	"github.com/oakmart/fulfillment/internal/domain/payment"
	"github.com/oakmart/fulfillment/internal/domain/product"
	"github.com/oakmart/fulfillment/internal/domain/shipment"
	"github.com/oakmart/fulfillment/internal/ledger"
)

// writeError emits the uniform error body {"code": n, "message": "..."}.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(message)
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// respondError maps domain errors onto HTTP statuses. Anything unmapped is a
// 500 and gets logged; mapped rejections are the client's problem and are not.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr      *inventory.InsufficientStockError
		transitionErr *order.InvalidTransitionError
		notFoundErr   *product.NotFoundError
		inactiveErr   *product.InactiveError
		unallocErr    *shipment.UnallocatableItemError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, order.ErrInvalidQuantity),
		errors.As(err, &notFoundErr),
		errors.As(err, &inactiveErr),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrExhausted),
		errors.Is(err, coupon.ErrPerUserLimit):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &stockErr),
		errors.As(err, &transitionErr),
		errors.As(err, &unallocErr),
		errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrDeclined):
		writeError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
