// Package ledger defines the PlayerLedger collaborator of the wager engine.
//
// A Ledger owns balances; every Debit and Credit is atomic per call. The
// engine never assumes that a Balance read followed by a Debit is atomic
// across the ledger boundary: Debit itself must refuse to overdraw.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/wager"
)

var (
	// ErrNotRegistered means the player (or house account) is unknown.
	ErrNotRegistered = errors.New("player not registered")
	// ErrInsufficientFunds means a debit would overdraw the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnavailable means the ledger could not be reached. Retryable.
	ErrUnavailable = errors.New("ledger unavailable")
)

// Memo annotates a balance movement for the audit trail.
type Memo struct {
	SessionID string
	Reason    string
}

// Movement reasons.
const (
	ReasonEscrow       = "escrow"
	ReasonRefund       = "refund"
	ReasonSettlement   = "settlement"
	ReasonCommission   = "house"
	ReasonContinuation = "continuation_escrow"
	ReasonDeposit      = "deposit"
	ReasonReversal     = "reversal"
)

// Ledger is the PlayerLedger contract consumed by the engine.
type Ledger interface {
	// Player returns the account including stats.
	Player(ctx context.Context, playerID string) (wager.Player, error)
	// Balance returns the current balance.
	Balance(ctx context.Context, playerID string) (decimal.Decimal, error)
	// Debit removes amount, failing with ErrInsufficientFunds instead of
	// overdrawing.
	Debit(ctx context.Context, playerID string, amount decimal.Decimal, memo Memo) error
	// Credit adds amount.
	Credit(ctx context.Context, playerID string, amount decimal.Decimal, memo Memo) error
	// RecordOutcome folds a resolved outcome into the player's stats.
	RecordOutcome(ctx context.Context, playerID string, outcome wager.Outcome, roll int) error
}

// Overdraftable is implemented by ledgers that can let a specific account
// (the house) go negative.
type Overdraftable interface {
	AllowOverdraft(playerID string)
}
