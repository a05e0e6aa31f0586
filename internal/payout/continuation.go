package payout

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/dice"
	"github.com/roach88/dicewager/internal/wager"
)

// ContinuationRound is a double-or-nothing roll pair against the house.
type ContinuationRound struct {
	// Mode is the mode of the original session.
	Mode     wager.Mode
	PlayerID string
	AtRisk   decimal.Decimal

	PlayerDie   int
	OpponentDie int

	// OriginalDie is the winning face of the original session.
	OriginalDie int
	// JackpotDraw is the chance draw; only consulted for PvC sessions.
	JackpotDraw bool
}

// ContinuationJackpotHit reports whether a continuation takes the jackpot
// path: a double six, repeated on the original winning face, and for PvC
// sessions the chance draw as well.
func (r Rules) ContinuationJackpotHit(c ContinuationRound) bool {
	six := r.LuckyFace
	if c.PlayerDie != six || c.OpponentDie != six || c.OriginalDie != six {
		return false
	}
	return c.Mode == wager.ModePvP || c.JackpotDraw
}

// ResolveContinuation computes a double-or-nothing resolution. No commission
// is taken: a win credits the continuation multiple of the amount at risk,
// a loss forfeits all of it to the house, a tie refunds it.
func (r Rules) ResolveContinuation(c ContinuationRound) (Resolution, error) {
	if !dice.Valid(c.PlayerDie) || !dice.Valid(c.OpponentDie) {
		return Resolution{}, fmt.Errorf("%w: faces %d/%d", ErrInvalidRound, c.PlayerDie, c.OpponentDie)
	}
	if !c.AtRisk.IsPositive() {
		return Resolution{}, fmt.Errorf("%w: nothing at risk", ErrInvalidRound)
	}

	res := Resolution{
		Payout:     decimal.Zero,
		Commission: decimal.Zero,
		Credits:    map[string]decimal.Decimal{c.PlayerID: decimal.Zero},
		Escrowed:   c.AtRisk,
		Pot:        c.AtRisk.Add(c.AtRisk),
	}

	switch {
	case r.ContinuationJackpotHit(c):
		res.Outcome = wager.OutcomeJackpot
		res.Winner = c.PlayerID
		res.Payout = r.floor(mul(c.AtRisk, r.JackpotMultiplier))
	case c.PlayerDie > c.OpponentDie:
		res.Outcome = wager.OutcomeWin
		res.Winner = c.PlayerID
		res.Payout = r.floor(mul(c.AtRisk, r.ContinuationMultiplier))
	case c.PlayerDie == c.OpponentDie:
		res.Outcome = wager.OutcomeTie
		res.Credits[c.PlayerID] = c.AtRisk
	default:
		res.Outcome = wager.OutcomeLoss
		res.Winner = wager.BotPlayerID
		res.Payout = c.AtRisk
	}
	if res.Outcome.IsWin() {
		res.Credits[c.PlayerID] = res.Payout
	}

	res.HouseDelta = res.Escrowed.Sub(sum(res.Credits))
	return res, nil
}
