// Package notify delivers session outcomes to participants.
//
// The engine calls a Notifier at every player-visible moment of a session:
// match formed, reroll decision pending, result, continuation offered,
// timeouts and aborts. Delivery failures never affect a session; the engine
// logs them and moves on.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/wager"
)

// Kind classifies a message.
type Kind string

const (
	KindMatched              Kind = "matched"
	KindMatchTimeout         Kind = "match_timeout"
	KindRerollOffered        Kind = "reroll_offered"
	KindResult               Kind = "result"
	KindContinuationOffered  Kind = "continuation_offered"
	KindContinuationExpired  Kind = "continuation_expired"
	KindContinuationResolved Kind = "continuation_resolved"
	KindAborted              Kind = "aborted"
	KindProposalExpired      Kind = "proposal_expired"
)

// Message is an outcome summary addressed to one player.
type Message struct {
	Kind      Kind            `json:"kind"`
	SessionID string          `json:"session_id,omitempty"`
	Outcome   wager.Outcome   `json:"outcome,omitempty"`
	Roll      int             `json:"roll,omitempty"`
	Opponent  int             `json:"opponent_roll,omitempty"`
	Credit    decimal.Decimal `json:"credit"`
	Reason    string          `json:"reason,omitempty"`
}

// String renders the message for logs.
func (m Message) String() string {
	switch m.Kind {
	case KindResult, KindContinuationResolved:
		return fmt.Sprintf("%s %s %d-%d credit=%s", m.Kind, m.Outcome, m.Roll, m.Opponent, m.Credit)
	case KindAborted, KindMatchTimeout, KindProposalExpired:
		return fmt.Sprintf("%s: %s", m.Kind, m.Reason)
	}
	return string(m.Kind)
}

// Notifier is the outbound delivery contract.
type Notifier interface {
	Send(ctx context.Context, playerID string, msg Message) error
}

// Func adapts a function to a Notifier.
type Func func(ctx context.Context, playerID string, msg Message) error

// Send implements Notifier.
func (f Func) Send(ctx context.Context, playerID string, msg Message) error {
	return f(ctx, playerID, msg)
}

// Discard drops every message.
type Discard struct{}

// Send implements Notifier.
func (Discard) Send(context.Context, string, Message) error { return nil }

// Log writes each message as a structured log record.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Send implements Notifier.
func (l *Log) Send(ctx context.Context, playerID string, msg Message) error {
	l.logger.InfoContext(ctx, "notify",
		"player", playerID,
		"kind", msg.Kind,
		"session", msg.SessionID,
		"message", msg.String(),
	)
	return nil
}

// Multi fans a message out to every notifier, joining their errors.
type Multi []Notifier

// Send implements Notifier.
func (m Multi) Send(ctx context.Context, playerID string, msg Message) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, playerID, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Summary builds the result message for one participant of a resolved
// snapshot. Outcome is from that participant's side.
func Summary(snap wager.Snapshot, playerID string) Message {
	kind := KindResult
	if snap.ParentID != "" {
		kind = KindContinuationResolved
	}
	msg := Message{
		Kind:      kind,
		SessionID: snap.SessionID,
		Outcome:   OutcomeFor(snap, playerID),
		Roll:      snap.Rolls[playerID],
		Credit:    snap.Credits[playerID],
	}
	for id, v := range snap.Rolls {
		if id != playerID {
			msg.Opponent = v
		}
	}
	return msg
}

// OutcomeFor returns the outcome as seen by playerID. Snapshot outcomes are
// recorded from the first participant's side; the second human of a PvP
// session sees wins and losses swapped.
func OutcomeFor(snap wager.Snapshot, playerID string) wager.Outcome {
	if len(snap.Participants) == 0 || snap.Participants[0].PlayerID == playerID {
		return snap.Outcome
	}
	switch snap.Outcome {
	case wager.OutcomeWin:
		return wager.OutcomeLoss
	case wager.OutcomeLoss:
		return wager.OutcomeWin
	}
	return snap.Outcome
}
