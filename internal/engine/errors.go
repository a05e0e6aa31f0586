package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/dicewager/internal/ledger"
)

// WagerError is the error every exposed engine operation returns.
//
// Callers switch on Code; Remaining is set for COOLDOWN_ACTIVE. Err keeps
// the underlying cause (usually a ledger sentinel) for errors.Is.
type WagerError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// PlayerID identifies the affected player, if any.
	PlayerID string

	// SessionID identifies the affected session, if any.
	SessionID string

	// Remaining is the cooldown left (COOLDOWN_ACTIVE only).
	Remaining time.Duration

	// Err is the wrapped cause.
	Err error
}

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeNotRegistered indicates an unknown player. No state changed.
	ErrCodeNotRegistered ErrorCode = "NOT_REGISTERED"

	// ErrCodeInsufficientFunds indicates balance below stake plus power-up
	// cost. Nothing was debited.
	ErrCodeInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"

	// ErrCodeAlreadyInSession indicates the player already holds a session
	// or a queue slot.
	ErrCodeAlreadyInSession ErrorCode = "ALREADY_IN_SESSION"

	// ErrCodeCooldownActive indicates the player must wait Remaining.
	ErrCodeCooldownActive ErrorCode = "COOLDOWN_ACTIVE"

	// ErrCodeHouseAccountMissing indicates the house account is not
	// registered with the ledger. Needs operator attention.
	ErrCodeHouseAccountMissing ErrorCode = "HOUSE_ACCOUNT_MISSING"

	// ErrCodeMatchTimeout indicates a queued entry was evicted unmatched.
	ErrCodeMatchTimeout ErrorCode = "MATCH_TIMEOUT"

	// ErrCodeLedgerUnavailable indicates the ledger failed after one retry.
	ErrCodeLedgerUnavailable ErrorCode = "LEDGER_UNAVAILABLE"

	// ErrCodeInvalidRequest indicates malformed input.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodeSessionNotFound indicates an unknown session ID.
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// ErrCodeInvalidTransition indicates the session is not in a state
	// that allows the operation.
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"

	// ErrCodeProposalExpired indicates a proposal was not confirmed in time
	// or never existed.
	ErrCodeProposalExpired ErrorCode = "PROPOSAL_EXPIRED"

	// ErrCodeHouseUnderfunded indicates the house could not cover a payout.
	ErrCodeHouseUnderfunded ErrorCode = "HOUSE_UNDERFUNDED"

	// ErrCodeClosed indicates the engine is shutting down.
	ErrCodeClosed ErrorCode = "ENGINE_CLOSED"
)

// Error implements the error interface.
func (e *WagerError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.PlayerID != "" {
		msg += fmt.Sprintf(" (player=%s)", e.PlayerID)
	}
	if e.SessionID != "" {
		msg += fmt.Sprintf(" (session=%s)", e.SessionID)
	}
	if e.Code == ErrCodeCooldownActive {
		msg += fmt.Sprintf(" (remaining=%s)", e.Remaining)
	}
	return msg
}

// Unwrap returns the cause.
func (e *WagerError) Unwrap() error {
	return e.Err
}

// IsCode reports whether err is a WagerError with the given code.
// Uses errors.As to handle wrapped errors.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// CodeOf returns the code of a WagerError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var we *WagerError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}

// RemainingCooldown returns the cooldown carried by a COOLDOWN_ACTIVE error.
func RemainingCooldown(err error) (time.Duration, bool) {
	var we *WagerError
	if errors.As(err, &we) && we.Code == ErrCodeCooldownActive {
		return we.Remaining, true
	}
	return 0, false
}

func newError(code ErrorCode, format string, args ...any) *WagerError {
	return &WagerError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (e *WagerError) forPlayer(playerID string) *WagerError {
	e.PlayerID = playerID
	return e
}

func (e *WagerError) forSession(sessionID string) *WagerError {
	e.SessionID = sessionID
	return e
}

// fromLedger classifies a ledger error. Anything that is not a known
// ledger sentinel is treated as the ledger being unavailable.
func fromLedger(err error, playerID string) *WagerError {
	var we *WagerError
	if errors.As(err, &we) {
		return we
	}
	code := ErrCodeLedgerUnavailable
	switch {
	case errors.Is(err, ledger.ErrNotRegistered):
		code = ErrCodeNotRegistered
	case errors.Is(err, ledger.ErrInsufficientFunds):
		code = ErrCodeInsufficientFunds
	}
	return &WagerError{Code: code, Message: err.Error(), PlayerID: playerID, Err: err}
}
