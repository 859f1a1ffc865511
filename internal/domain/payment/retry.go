package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RetryPolicy drives gateway calls with bounded retries. Transient failures
// are retried with exponential backoff up to MaxAttempts and then treated as
// declined; permanent declines are never retried. Every attempt runs under
// AttemptTimeout, so a stalled provider cannot hold a checkout forever.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy mirrors common provider guidance: three attempts,
// doubling backoff starting at 100ms, 10s per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		AttemptTimeout: 10 * time.Second,
	}
}

// Charge calls gw.Charge under the policy. On exhausted transient retries it
// returns ErrDeclined wrapped with the last transient cause.
func (p RetryPolicy) Charge(ctx context.Context, gw Gateway, amount decimal.Decimal, currency string, orderRef uuid.UUID) (*ChargeResult, error) {
	var lastErr error
	backoff := p.InitialBackoff

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		res, err := gw.Charge(attemptCtx, amount, currency, orderRef)
		cancel()

		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrDeclined):
			return nil, err
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// Attempt timeout counts as a transient failure.
			lastErr = err
		default:
			var transient *TransientError
			if !errors.As(err, &transient) {
				return nil, err
			}
			lastErr = err
		}
	}

	return nil, errors.Wrapf(ErrDeclined, "transient failures exhausted after %d attempts: %v", p.MaxAttempts, lastErr)
}

// Refund calls gw.Refund under the same policy.
func (p RetryPolicy) Refund(ctx context.Context, gw Gateway, chargeID string, amount decimal.Decimal) error {
	var lastErr error
	backoff := p.InitialBackoff

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		err := gw.Refund(attemptCtx, chargeID, amount)
		cancel()

		switch {
		case err == nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			lastErr = err
		default:
			var transient *TransientError
			if !errors.As(err, &transient) {
				return err
			}
			lastErr = err
		}
	}

	return errors.Wrapf(lastErr, "refund retries exhausted after %d attempts", p.MaxAttempts)
}
