package engine

import (
	"context"
	"fmt"

	"github.com/roach88/dicewager/internal/clock"
	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/payout"
	"github.com/roach88/dicewager/internal/wager"
)

// OfferContinuation turns a resolved win into a double-or-nothing session
// and returns its ID. The winner's net credit from sessionID is at risk.
// Fails with INVALID_TRANSITION when no continuation is on offer (loss,
// tie, shared jackpot, already taken, declined or expired).
func (e *Engine) OfferContinuation(ctx context.Context, sessionID string) (string, error) {
	if e.isClosed() {
		return "", newError(ErrCodeClosed, "engine is shutting down").forSession(sessionID)
	}
	parent, ok := e.lookup(sessionID)
	if !ok {
		return "", newError(ErrCodeSessionNotFound, "no live session").forSession(sessionID)
	}

	childID, winner, atRisk, originalDie, err := parent.claimContinuation(e.ids.Generate)
	if err != nil {
		return "", err
	}

	child := newContinuation(parent, childID, winner, atRisk, originalDie, e.clock.Now())
	e.track(child)
	e.guard.Rebind(winner, parent.id, child.id)
	child.setTimer(e.clock.AfterFunc(e.timing.ContinuationWindow, func() {
		e.endOffer(context.Background(), child, wager.EventExpired)
	}))

	e.logger.Info("continuation offered", "session", parent.id, "continuation", child.id, "player", winner, "at_risk", atRisk.String())
	e.archiveSession(ctx, parent)
	return child.id, nil
}

// ResolveContinuation plays an offered continuation to the end and returns
// its final snapshot. The at-risk amount is escrowed again first; if the
// winner no longer holds it the continuation aborts with no balance effect.
func (e *Engine) ResolveContinuation(ctx context.Context, continuationID string) (wager.Snapshot, error) {
	if e.isClosed() {
		return wager.Snapshot{}, newError(ErrCodeClosed, "engine is shutting down").forSession(continuationID)
	}
	child, ok := e.lookup(continuationID)
	if !ok {
		return wager.Snapshot{}, newError(ErrCodeSessionNotFound, "no live session").forSession(continuationID)
	}
	if child.parentID == "" {
		return child.Snapshot(), newError(ErrCodeInvalidTransition, "session is not a continuation").forSession(continuationID)
	}
	parent, _ := e.lookup(child.parentID)

	// Back to Created while escrow runs. Only the caller that takes the
	// offer here plays or aborts the continuation; a duplicate resolve, a
	// decline or the expiry timer then finds the offer gone.
	if err := child.transition(wager.StateCreated, wager.StateContinuationOffered); err != nil {
		return child.Snapshot(), err
	}
	child.stopTimer()

	if err := e.playContinuation(ctx, child); err != nil {
		e.abort(ctx, child, err)
		e.concludeParent(ctx, parent, wager.EventAborted, string(CodeOf(err)))
		return child.Snapshot(), err
	}
	e.concludeParent(ctx, parent, wager.EventResolved, child.id)
	return child.Snapshot(), nil
}

func (e *Engine) playContinuation(ctx context.Context, child *Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("continuation panicked", "session", child.id, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := e.escrow(ctx, child); err != nil {
		return err
	}

	if err := child.transition(wager.StateRollingPlayer, wager.StateEscrowed); err != nil {
		return err
	}
	player := child.seat(0)
	if err := clock.Sleep(ctx, e.clock, e.timing.RollDelay); err != nil {
		return err
	}
	pDie := e.roller.Roll()
	child.setRoll(wager.EventRolled, player.PlayerID, pDie)

	if err := child.transition(wager.StateRollingOpponent, wager.StateRollingPlayer); err != nil {
		return err
	}
	if err := clock.Sleep(ctx, e.clock, e.timing.RollDelay); err != nil {
		return err
	}
	var oDie int
	if child.mode == wager.ModePvC {
		oDie = e.roller.RollBiased(child.difficulty)
	} else {
		oDie = e.roller.Roll()
	}
	child.setRoll(wager.EventRolled, wager.BotPlayerID, oDie)

	round := payout.ContinuationRound{
		Mode:        child.mode,
		PlayerID:    player.PlayerID,
		AtRisk:      player.Stake,
		PlayerDie:   pDie,
		OpponentDie: oDie,
		OriginalDie: child.originalDie,
	}
	six := e.rules.LuckyFace
	if child.mode == wager.ModePvC && pDie == six && oDie == six && child.originalDie == six {
		round.JackpotDraw = e.roller.Chance(e.rules.JackpotChance)
		child.record(wager.EventJackpotDraw, player.PlayerID, boolInt(round.JackpotDraw), "")
	}

	res, err := e.rules.ResolveContinuation(round)
	if err != nil {
		return newError(ErrCodeInvalidRequest, "%v", err).forSession(child.id)
	}
	return e.finish(ctx, child, res, wager.StateContinuationResolved, wager.StateRollingOpponent)
}

// DeclineContinuation refuses a double or nothing. sessionID may be the
// resolved session (before an offer was taken) or the offered continuation.
func (e *Engine) DeclineContinuation(ctx context.Context, sessionID string) error {
	s, ok := e.lookup(sessionID)
	if !ok {
		return newError(ErrCodeSessionNotFound, "no live session").forSession(sessionID)
	}

	if winner, ok := s.closeWindow(wager.EventDeclined); ok {
		e.guard.ReleaseIf(winner, s.id)
		e.archiveSession(ctx, s)
		return nil
	}

	target := s
	if snap := s.Snapshot(); snap.State == wager.StateContinuationOffered && snap.ContinuedBy != "" {
		if child, ok := e.lookup(snap.ContinuedBy); ok {
			target = child
		}
	}
	if target.parentID == "" || !e.endOffer(ctx, target, wager.EventDeclined) {
		return newError(ErrCodeInvalidTransition, "no continuation to decline").forSession(sessionID)
	}
	return nil
}

// expireContinuation is the window timer of a resolved session whose
// winner never asked for the continuation.
func (e *Engine) expireContinuation(s *Session) {
	winner, ok := s.closeWindow(wager.EventExpired)
	if !ok {
		return
	}
	e.guard.ReleaseIf(winner, s.id)
	e.send(e.ctx, winner, notify.Message{Kind: notify.KindContinuationExpired, SessionID: s.id})
	e.archiveSession(e.ctx, s)
}

// endOffer ends an offered continuation that was never played. No money
// has moved, so this is an abort with nothing to refund.
func (e *Engine) endOffer(ctx context.Context, child *Session, kind string) bool {
	refunds, ok := child.markAbortedFrom(fmt.Errorf("continuation %s", kind), e.clock.Now(), wager.StateContinuationOffered)
	if !ok {
		return false
	}
	if len(refunds) > 0 {
		e.logger.Error("offered continuation held escrow", "session", child.id)
	}
	child.record(kind, "", 0, "")

	winner := child.seat(0).PlayerID
	e.guard.ReleaseIf(winner, child.id)
	if kind == wager.EventExpired {
		e.send(ctx, winner, notify.Message{Kind: notify.KindContinuationExpired, SessionID: child.id})
	}

	parent, _ := e.lookup(child.parentID)
	e.concludeParent(ctx, parent, kind, child.id)
	e.archiveSession(ctx, child)
	return true
}

func (e *Engine) concludeParent(ctx context.Context, parent *Session, kind, detail string) {
	if parent == nil {
		return
	}
	if parent.concludeContinuation(kind, detail) {
		e.archiveSession(ctx, parent)
	}
}
