// Package payment models payment attempts against an order and the external
// payment gateway adapter. The gateway is an at-least-once, possibly-slow,
// possibly-failing black box; it is never called while ledger row locks are
// held.
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the states of a single payment attempt.
type Status string

const (
	StatusInitiated Status = "initiated"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// ErrDeclined is the permanent-failure sentinel: the provider rejected the
// charge and retrying cannot help.
var ErrDeclined = errors.New("payment declined")

// TransientError wraps a retryable gateway failure such as a network timeout.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient payment error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Payment is one attempt to charge or refund an order. An order may
// accumulate several rows across retries and refunds. ProviderChargeID is the
// idempotency key used to detect and merge duplicate success notifications.
type Payment struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	Status           Status
	Amount           decimal.Decimal
	Currency         string
	ProviderChargeID string
	CreatedAt        time.Time
}

// ChargeResult is the gateway's answer to a charge request.
type ChargeResult struct {
	ChargeID string
}

// Gateway is the external payment provider adapter. Charge and Refund may
// fail transiently (*TransientError) or permanently (ErrDeclined); callers
// apply distinct retry policy to each.
type Gateway interface {
	Charge(ctx context.Context, amount decimal.Decimal, currency string, orderRef uuid.UUID) (*ChargeResult, error)
	Refund(ctx context.Context, chargeID string, amount decimal.Decimal) error
}

// TxView defines the payment record operations inside a ledger transaction.
type TxView interface {
	Insert(ctx context.Context, p *Payment) error
	ForOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
}

// LastSucceeded returns the most recent succeeded payment among the given
// rows, or nil when the order was never successfully charged.
func LastSucceeded(payments []Payment) *Payment {
	var last *Payment
	for i := range payments {
		if payments[i].Status != StatusSucceeded {
			continue
		}
		if last == nil || payments[i].CreatedAt.After(last.CreatedAt) {
			last = &payments[i]
		}
	}
	return last
}
