package payout

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/dice"
	"github.com/roach88/dicewager/internal/wager"
)

// ErrInvalidRound is returned when a round's inputs cannot be resolved.
var ErrInvalidRound = errors.New("invalid round")

// Side is one participant's inputs to a round.
type Side struct {
	PlayerID string
	Stake    decimal.Decimal
	PowerUp  wager.PowerUp
	Bot      bool
	Die      int

	// PreviousDie is the player's last recorded roll before this session.
	// It gates the PvC jackpot.
	PreviousDie int
}

// Round is the complete input of a first-round resolution. Player is always
// the first human participant; Opponent is the bot (PvC) or the second
// human (PvP).
type Round struct {
	Mode       wager.Mode
	Difficulty wager.Difficulty
	Player     Side
	Opponent   Side

	// JackpotDraw is the result of the secondary chance draw. Ignored in PvP.
	JackpotDraw bool
}

// Resolution is the outcome of a round or continuation.
type Resolution struct {
	// Outcome is seen from Round.Player.
	Outcome wager.Outcome `json:"outcome"`
	// Winner is the winning player ID, wager.BotPlayerID when the house
	// wins, or empty for a tie or a shared PvP jackpot.
	Winner string `json:"winner,omitempty"`
	// Payout is what the winner collects before commission, summed over
	// winners.
	Payout     decimal.Decimal `json:"payout"`
	Commission decimal.Decimal `json:"commission"`
	// Credits is what each human participant gets back at settlement.
	Credits map[string]decimal.Decimal `json:"credits"`
	// Escrowed is the total debited from human participants.
	Escrowed decimal.Decimal `json:"escrowed"`
	// HouseDelta is the house account's net change; negative when the
	// house pays out more than it escrowed.
	HouseDelta decimal.Decimal `json:"house_delta"`
	// Pot is the sum of both sides' stakes; the house covers the bot side.
	Pot decimal.Decimal `json:"pot"`
}

// Credit returns the settlement credit for a player.
func (r Resolution) Credit(playerID string) decimal.Decimal {
	return r.Credits[playerID]
}

// Validate checks faces and stakes.
func (rd Round) Validate() error {
	if !dice.Valid(rd.Player.Die) || !dice.Valid(rd.Opponent.Die) {
		return fmt.Errorf("%w: faces %d/%d", ErrInvalidRound, rd.Player.Die, rd.Opponent.Die)
	}
	if rd.Player.Bot {
		return fmt.Errorf("%w: first side must be human", ErrInvalidRound)
	}
	if !rd.Player.Stake.IsPositive() {
		return fmt.Errorf("%w: stake must be positive", ErrInvalidRound)
	}
	switch rd.Mode {
	case wager.ModePvC:
		if !rd.Opponent.Bot {
			return fmt.Errorf("%w: pvc opponent must be the bot", ErrInvalidRound)
		}
	case wager.ModePvP:
		if rd.Opponent.Bot {
			return fmt.Errorf("%w: pvp opponent must be human", ErrInvalidRound)
		}
		if !rd.Opponent.Stake.Equal(rd.Player.Stake) {
			return fmt.Errorf("%w: pvp stakes differ", ErrInvalidRound)
		}
	default:
		return fmt.Errorf("%w: mode %q", ErrInvalidRound, rd.Mode)
	}
	return nil
}

// JackpotHit reports whether the round takes the jackpot path.
//
// PvP: both faces are six. PvC: the player's face is six, the chance draw
// hit, and the player's previous recorded roll was also six.
func (r Rules) JackpotHit(rd Round) bool {
	six := r.LuckyFace
	if rd.Mode == wager.ModePvP {
		return rd.Player.Die == six && rd.Opponent.Die == six
	}
	return rd.Player.Die == six && rd.JackpotDraw && rd.Player.PreviousDie == six
}

// Resolve computes the resolution of a first round.
func (r Rules) Resolve(rd Round) (Resolution, error) {
	if err := rd.Validate(); err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		Payout:     decimal.Zero,
		Commission: decimal.Zero,
		Credits:    map[string]decimal.Decimal{},
		Escrowed:   decimal.Zero,
		Pot:        rd.Player.Stake.Add(rd.Player.Stake),
	}
	humans := []Side{rd.Player}
	if !rd.Opponent.Bot {
		humans = append(humans, rd.Opponent)
	}
	for _, h := range humans {
		res.Escrowed = res.Escrowed.Add(r.Required(h.Stake, h.PowerUp))
		res.Credits[h.PlayerID] = decimal.Zero
	}

	switch {
	case r.JackpotHit(rd):
		r.resolveJackpot(rd, humans, &res)
	case rd.Player.Die == rd.Opponent.Die:
		res.Outcome = wager.OutcomeTie
		for _, h := range humans {
			res.Credits[h.PlayerID] = h.Stake
		}
	case rd.Player.Die > rd.Opponent.Die:
		res.Outcome = wager.OutcomeWin
		r.resolveWin(rd.Player, rd.Opponent, &res)
	case rd.Opponent.Bot:
		res.Outcome = wager.OutcomeLoss
		r.resolveHouseWin(rd.Player, rd.Opponent, &res)
	default:
		res.Outcome = wager.OutcomeLoss
		r.resolveWin(rd.Opponent, rd.Player, &res)
	}

	res.HouseDelta = res.Escrowed.Sub(sum(res.Credits))
	return res, nil
}

// resolveJackpot pays the jackpot multiplier instead of the normal win rule.
// A PvP double six is shared: each participant collects the multiplier on
// their own stake, with commission taken per participant.
func (r Rules) resolveJackpot(rd Round, humans []Side, res *Resolution) {
	res.Outcome = wager.OutcomeJackpot
	if rd.Mode == wager.ModePvC {
		res.Winner = rd.Player.PlayerID
		payout := r.floor(mul(mul(rd.Player.Stake, r.BaseMultiplier), r.JackpotMultiplier))
		commission := r.Commission(rd.Player.Stake, payout)
		res.Payout = payout
		res.Commission = commission
		res.Credits[rd.Player.PlayerID] = payout.Sub(commission)
		return
	}
	for _, h := range humans {
		payout := r.floor(mul(h.Stake, r.JackpotMultiplier))
		commission := r.Commission(h.Stake, payout)
		res.Payout = res.Payout.Add(payout)
		res.Commission = res.Commission.Add(commission)
		res.Credits[h.PlayerID] = payout.Sub(commission)
	}
}

// WinPayout is what a human winner collects before commission: the base
// multiple, then the lucky face, then boost (winner) and shield (loser).
func (r Rules) WinPayout(winner, loser Side) decimal.Decimal {
	payout := mul(winner.Stake, r.BaseMultiplier)
	if winner.Die == r.LuckyFace {
		payout = mul(payout, r.LuckyMultiplier)
	}
	if winner.PowerUp == wager.PowerUpBoost {
		payout = mul(payout, r.BoostMultiplier)
	}
	if loser.PowerUp == wager.PowerUpShield {
		payout = mul(payout, r.ShieldMultiplier)
	}
	return r.floor(payout)
}

func (r Rules) resolveWin(winner, loser Side, res *Resolution) {
	payout := r.WinPayout(winner, loser)
	commission := r.Commission(winner.Stake, payout)
	res.Winner = winner.PlayerID
	res.Payout = payout
	res.Commission = commission
	res.Credits[winner.PlayerID] = payout.Sub(commission)
}

// resolveHouseWin handles a PvC loss. What the house collects is the stake,
// reduced to the consolation share when the bot won on a face other than
// the consolation face, and halved again when the player holds a shield.
// Whatever the house does not collect is refunded.
func (r Rules) resolveHouseWin(player, bot Side, res *Resolution) {
	take := player.Stake
	if r.ConsolationApplies(bot.Die) {
		take = mul(take, r.Consolation.HouseShare)
	}
	if player.PowerUp == wager.PowerUpShield {
		take = mul(take, r.ShieldMultiplier)
	}
	take = r.floor(take)

	res.Winner = wager.BotPlayerID
	res.Payout = take
	res.Credits[player.PlayerID] = player.Stake.Sub(take)
}

// ConsolationApplies reports whether a PvC loss to the given bot face is
// softened.
func (r Rules) ConsolationApplies(botDie int) bool {
	return r.Consolation.Enabled && botDie != r.Consolation.Face
}

func sum(m map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range m {
		total = total.Add(v)
	}
	return total
}
