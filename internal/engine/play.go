package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/dicewager/internal/clock"
	"github.com/roach88/dicewager/internal/ledger"
	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/payout"
	"github.com/roach88/dicewager/internal/wager"
)

// run drives an escrowed first-round session to resolution. Any error or
// panic before payout aborts and refunds.
func (e *Engine) run(s *Session) {
	defer e.wg.Done()
	ctx := e.ctx

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("session panicked", "session", s.id, "panic", r)
			e.abort(ctx, s, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := e.play(ctx, s); err != nil {
		e.abort(ctx, s, err)
	}
}

func (e *Engine) play(ctx context.Context, s *Session) error {
	if err := s.transition(wager.StateRollingPlayer, wager.StateEscrowed); err != nil {
		return err
	}
	player := s.seat(0)
	pDie, err := e.rollHuman(ctx, s, player)
	if err != nil {
		return err
	}

	if err := s.transition(wager.StateRollingOpponent, wager.StateRollingPlayer); err != nil {
		return err
	}
	opponent := s.seat(1)
	var oDie int
	if opponent.Bot {
		if err := clock.Sleep(ctx, e.clock, e.timing.RollDelay); err != nil {
			return err
		}
		oDie = e.roller.RollBiased(s.difficulty)
		s.setRoll(wager.EventRolled, wager.BotPlayerID, oDie)
	} else {
		oDie, err = e.rollHuman(ctx, s, opponent)
		if err != nil {
			return err
		}
	}

	draw := false
	if s.mode == wager.ModePvC && pDie == e.rules.LuckyFace {
		draw = e.roller.Chance(e.rules.JackpotChance)
		s.record(wager.EventJackpotDraw, player.PlayerID, boolInt(draw), "")
	}

	round := payout.Round{
		Mode:        s.mode,
		Difficulty:  s.difficulty,
		Player:      e.side(s, player, pDie),
		Opponent:    e.side(s, opponent, oDie),
		JackpotDraw: draw,
	}
	res, err := e.rules.Resolve(round)
	if err != nil {
		return newError(ErrCodeInvalidRequest, "%v", err).forSession(s.id)
	}
	return e.finish(ctx, s, res, wager.StateResolved, wager.StateRollingOpponent)
}

func (e *Engine) side(s *Session, p wager.Participant, die int) payout.Side {
	return payout.Side{
		PlayerID:    p.PlayerID,
		Stake:       p.Stake,
		PowerUp:     p.PowerUp,
		Bot:         p.Bot,
		Die:         die,
		PreviousDie: s.previous[p.PlayerID],
	}
}

// rollHuman rolls for a player and, for a reroll holder, waits on the
// decision future. No answer within the window keeps the first roll.
func (e *Engine) rollHuman(ctx context.Context, s *Session, p wager.Participant) (int, error) {
	if err := clock.Sleep(ctx, e.clock, e.timing.RollDelay); err != nil {
		return 0, err
	}
	die := e.roller.Roll()
	s.setRoll(wager.EventRolled, p.PlayerID, die)
	if p.PowerUp != wager.PowerUpReroll {
		return die, nil
	}

	pending := e.decisions.Open(p.PlayerID, e.timing.RerollWindow)
	s.record(wager.EventRerollOffered, p.PlayerID, die, "")
	e.send(ctx, p.PlayerID, notify.Message{Kind: notify.KindRerollOffered, SessionID: s.id, Roll: die})

	dec, err := e.decisions.Wait(ctx, pending)
	if err != nil {
		return 0, err
	}
	if !dec.Reroll {
		detail := "kept"
		if dec.TimedOut {
			detail = "timeout"
		}
		s.record(wager.EventRerollKept, p.PlayerID, die, detail)
		return die, nil
	}

	if err := clock.Sleep(ctx, e.clock, e.timing.RollDelay); err != nil {
		return 0, err
	}
	die = e.roller.Roll()
	s.setRoll(wager.EventRerolled, p.PlayerID, die)
	return die, nil
}

// SubmitDecision answers a pending reroll offer. Returns false when the
// player has nothing pending.
func (e *Engine) SubmitDecision(playerID string, reroll bool) bool {
	return e.decisions.Submit(NormalizePlayerID(playerID), reroll)
}

// DecisionPending reports whether the player is being asked about a reroll.
func (e *Engine) DecisionPending(playerID string) bool {
	return e.decisions.Pending(NormalizePlayerID(playerID))
}

// finish settles a resolution, moves the session from `from` to `to`,
// records stats, notifies and opens or closes the continuation window.
func (e *Engine) finish(ctx context.Context, s *Session, res payout.Resolution, to, from wager.State) error {
	ctx, span := e.tracer.Start(ctx, "engine.resolve", trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("session.outcome", string(res.Outcome)),
	))
	defer span.End()

	if err := e.settle(ctx, s, res); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	keep := e.continuationFor(s, res)
	if err := s.resolve(res, e.clock.Now(), to, from, keep != ""); err != nil {
		// Money has moved; a second resolution must never happen.
		e.logger.Error("resolution raced", "session", s.id, "error", err)
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	snap := s.Snapshot()
	for _, p := range s.humans() {
		outcome := notify.OutcomeFor(snap, p.PlayerID)
		if err := e.ledger.RecordOutcome(ctx, p.PlayerID, outcome, snap.Rolls[p.PlayerID]); err != nil {
			e.logger.Warn("record outcome failed", "session", s.id, "player", p.PlayerID, "error", err)
		}
		e.send(ctx, p.PlayerID, notify.Summary(snap, p.PlayerID))
	}

	e.logger.Info("session resolved",
		"session", s.id,
		"outcome", res.Outcome,
		"winner", res.Winner,
		"payout", res.Payout.String(),
		"commission", res.Commission.String(),
		"house_delta", res.HouseDelta.String(),
	)

	e.afterResolution(ctx, s, res, keep)
	return nil
}

// movement is one balance change applied by settle.
type movement struct {
	playerID string
	amount   decimal.Decimal
	credit   bool
}

// settle moves money for a resolution. A house shortfall is checked first
// so that nothing is credited when the house cannot pay. Any later failure
// reverses what settle already applied and returns the error, so the
// session aborts and refunds escrow instead of resolving.
func (e *Engine) settle(ctx context.Context, s *Session, res payout.Resolution) error {
	var applied []movement
	houseMemo := ledger.Memo{SessionID: s.id, Reason: ledger.ReasonCommission}
	if res.HouseDelta.IsNegative() {
		if err := e.ledger.Debit(ctx, e.houseID, res.HouseDelta.Neg(), houseMemo); err != nil {
			switch {
			case errors.Is(err, ledger.ErrInsufficientFunds):
				e.logger.Error("house underfunded", "event", "house_underfunded", "session", s.id, "amount", res.HouseDelta.Neg().String())
				return &WagerError{Code: ErrCodeHouseUnderfunded, Message: "house cannot cover payout", SessionID: s.id, Err: err}
			case errors.Is(err, ledger.ErrNotRegistered):
				e.logger.Error("house account missing", "event", "house_account_missing", "session", s.id)
				return &WagerError{Code: ErrCodeHouseAccountMissing, Message: "house account is not registered", SessionID: s.id, Err: err}
			}
			return fromLedger(err, e.houseID).forSession(s.id)
		}
		applied = append(applied, movement{playerID: e.houseID, amount: res.HouseDelta.Neg()})
	}

	for _, p := range s.humans() {
		credit := res.Credit(p.PlayerID)
		if !credit.IsPositive() {
			continue
		}
		memo := ledger.Memo{SessionID: s.id, Reason: ledger.ReasonSettlement}
		if err := e.ledger.Credit(ctx, p.PlayerID, credit, memo); err != nil {
			e.logger.Error("settlement credit failed",
				"event", "settlement_failed",
				"session", s.id,
				"player", p.PlayerID,
				"amount", credit.String(),
				"error", err,
			)
			e.reverse(ctx, s, applied)
			return fromLedger(err, p.PlayerID).forSession(s.id)
		}
		applied = append(applied, movement{playerID: p.PlayerID, amount: credit, credit: true})
	}

	if res.HouseDelta.IsPositive() {
		if err := e.ledger.Credit(ctx, e.houseID, res.HouseDelta, houseMemo); err != nil {
			e.logger.Error("house credit failed", "event", "settlement_failed", "session", s.id, "amount", res.HouseDelta.String(), "error", err)
			e.reverse(ctx, s, applied)
			return fromLedger(err, e.houseID).forSession(s.id)
		}
	}

	s.record(wager.EventSettled, "", 0, res.HouseDelta.String())
	return nil
}

// reverse undoes applied movements, newest first. A movement that cannot
// be undone is recorded on the session for operator attention.
func (e *Engine) reverse(ctx context.Context, s *Session, applied []movement) {
	ctx = context.WithoutCancel(ctx)
	memo := ledger.Memo{SessionID: s.id, Reason: ledger.ReasonReversal}
	for i := len(applied) - 1; i >= 0; i-- {
		m := applied[i]
		var err error
		if m.credit {
			err = e.ledger.Debit(ctx, m.playerID, m.amount, memo)
		} else {
			err = e.ledger.Credit(ctx, m.playerID, m.amount, memo)
		}
		if err != nil {
			s.record(wager.EventRefundFailed, m.playerID, 0, m.amount.String())
			s.setError("settlement reversal failed: " + err.Error())
			e.logger.Error("settlement reversal failed",
				"event", "refund_failed",
				"session", s.id,
				"player", m.playerID,
				"amount", m.amount.String(),
				"error", err,
			)
			continue
		}
		s.record(wager.EventReversed, m.playerID, 0, m.amount.String())
	}
}

// continuationFor returns the human winner who may take a double or
// nothing, or "". Continuations themselves are never continued.
func (e *Engine) continuationFor(s *Session, res payout.Resolution) string {
	if s.parentID != "" || e.timing.ContinuationWindow <= 0 {
		return ""
	}
	if res.Winner == "" || res.Winner == wager.BotPlayerID || !res.Credit(res.Winner).IsPositive() {
		return ""
	}
	return res.Winner
}

// afterResolution releases every guard the session holds except the one of
// a winner offered a continuation, whose window it arms.
func (e *Engine) afterResolution(ctx context.Context, s *Session, res payout.Resolution, keep string) {
	for _, p := range s.humans() {
		if p.PlayerID != keep {
			e.guard.ReleaseIf(p.PlayerID, s.id)
		}
	}

	if keep != "" {
		s.setTimer(e.clock.AfterFunc(e.timing.ContinuationWindow, func() {
			e.expireContinuation(s)
		}))
		e.send(ctx, keep, notify.Message{
			Kind:      notify.KindContinuationOffered,
			SessionID: s.id,
			Credit:    res.Credit(keep),
		})
	}
	e.archiveSession(ctx, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
