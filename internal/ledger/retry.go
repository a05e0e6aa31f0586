package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/wager"
)

// DefaultRetryInterval is the wait before the single retry.
const DefaultRetryInterval = 100 * time.Millisecond

// Retrying wraps a Ledger and retries ErrUnavailable failures exactly once,
// with backoff, at the debit/credit boundary. Every other error is final.
type Retrying struct {
	Ledger
	interval time.Duration
}

// NewRetrying wraps l. interval <= 0 uses DefaultRetryInterval.
func NewRetrying(l Ledger, interval time.Duration) *Retrying {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return &Retrying{Ledger: l, interval: interval}
}

// Debit implements Ledger.
func (r *Retrying) Debit(ctx context.Context, playerID string, amount decimal.Decimal, memo Memo) error {
	return r.retry(ctx, func() error {
		return r.Ledger.Debit(ctx, playerID, amount, memo)
	})
}

// Credit implements Ledger.
func (r *Retrying) Credit(ctx context.Context, playerID string, amount decimal.Decimal, memo Memo) error {
	return r.retry(ctx, func() error {
		return r.Ledger.Credit(ctx, playerID, amount, memo)
	})
}

// RecordOutcome implements Ledger.
func (r *Retrying) RecordOutcome(ctx context.Context, playerID string, outcome wager.Outcome, roll int) error {
	return r.retry(ctx, func() error {
		return r.Ledger.RecordOutcome(ctx, playerID, outcome, roll)
	})
}

// AllowOverdraft forwards to the wrapped ledger when supported.
func (r *Retrying) AllowOverdraft(playerID string) {
	if o, ok := r.Ledger.(Overdraftable); ok {
		o.AllowOverdraft(playerID)
	}
}

func (r *Retrying) retry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.interval
	b.MaxInterval = r.interval * 4

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, ErrUnavailable) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(2))
	return err
}
