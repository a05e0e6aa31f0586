package wager

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BotPlayerID identifies the synthetic house opponent in rolls and events.
const BotPlayerID = "@bot"

// Mode selects who the player is matched against.
type Mode string

const (
	ModePvC Mode = "pvc"
	ModePvP Mode = "pvp"
)

// PowerUp is an optional paid modifier bought with the stake.
type PowerUp string

const (
	PowerUpNone   PowerUp = "none"
	PowerUpReroll PowerUp = "reroll"
	PowerUpShield PowerUp = "shield"
	PowerUpBoost  PowerUp = "boost"
)

// Difficulty biases the bot opponent's die in PvC sessions.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// Outcome is the result of a resolved round, seen from the first human
// participant.
type Outcome string

const (
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeTie     Outcome = "tie"
	OutcomeJackpot Outcome = "jackpot"
)

// IsWin reports whether the outcome pays the player.
func (o Outcome) IsWin() bool {
	return o == OutcomeWin || o == OutcomeJackpot
}

// State is a WagerSession state.
type State string

const (
	StateCreated              State = "created"
	StateEscrowed             State = "escrowed"
	StateRollingPlayer        State = "rolling_player"
	StateRollingOpponent      State = "rolling_opponent"
	StateResolved             State = "resolved"
	StateContinuationOffered  State = "continuation_offered"
	StateContinuationResolved State = "continuation_resolved"
	StateAborted              State = "aborted"
)

// Terminal reports whether no further transition can leave this state.
// Resolved is terminal only once the continuation window is closed; the
// session tracks that separately.
func (s State) Terminal() bool {
	return s == StateContinuationResolved || s == StateAborted
}

// ParseMode validates a mode string. Empty defaults to PvC.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePvC:
		return ModePvC, nil
	case ModePvP:
		return ModePvP, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// ParsePowerUp validates a power-up string. Empty means none.
func ParsePowerUp(s string) (PowerUp, error) {
	switch PowerUp(s) {
	case "", PowerUpNone:
		return PowerUpNone, nil
	case PowerUpReroll, PowerUpShield, PowerUpBoost:
		return PowerUp(s), nil
	}
	return "", fmt.Errorf("unknown power-up %q", s)
}

// ParseDifficulty validates a difficulty string. Empty defaults to normal.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(s) {
	case "", DifficultyNormal:
		return DifficultyNormal, nil
	case DifficultyEasy, DifficultyHard:
		return Difficulty(s), nil
	}
	return "", fmt.Errorf("unknown difficulty %q", s)
}

// Participant is one side of a session.
type Participant struct {
	PlayerID    string          `json:"player_id"`
	Stake       decimal.Decimal `json:"stake"`
	PowerUp     PowerUp         `json:"power_up"`
	PowerUpCost decimal.Decimal `json:"power_up_cost"`
	Escrowed    decimal.Decimal `json:"escrowed"`
	Bot         bool            `json:"bot,omitempty"`
}

// Human reports whether the participant is a real player.
func (p Participant) Human() bool {
	return !p.Bot
}

// Event is one entry of a session's trace.
type Event struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	PlayerID string `json:"player_id,omitempty"`
	Value    int    `json:"value,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Event kinds recorded on session traces.
const (
	EventEscrowed       = "escrowed"
	EventRolled         = "rolled"
	EventRerollOffered  = "reroll_offered"
	EventRerolled       = "rerolled"
	EventRerollKept     = "reroll_kept"
	EventJackpotDraw    = "jackpot_draw"
	EventResolved       = "resolved"
	EventSettled        = "settled"
	EventOffered        = "continuation_offered"
	EventDeclined       = "continuation_declined"
	EventExpired        = "continuation_expired"
	EventAborted        = "aborted"
	EventRefundFailed   = "refund_failed"
	EventReversed       = "settlement_reversed"
	EventContinuationID = "continuation_started"
)

// Snapshot is a point-in-time copy of a session for status polling.
type Snapshot struct {
	SessionID    string                     `json:"session_id"`
	ParentID     string                     `json:"parent_id,omitempty"`
	ContinuedBy  string                     `json:"continued_by,omitempty"`
	Mode         Mode                       `json:"mode"`
	Difficulty   Difficulty                 `json:"difficulty"`
	State        State                      `json:"state"`
	Participants []Participant              `json:"participants"`
	Rolls        map[string]int             `json:"rolls"`
	Outcome      Outcome                    `json:"outcome,omitempty"`
	Winner       string                     `json:"winner,omitempty"`
	Pot          decimal.Decimal            `json:"pot"`
	Payout       decimal.Decimal            `json:"payout"`
	Commission   decimal.Decimal            `json:"commission"`
	Credits      map[string]decimal.Decimal `json:"credits,omitempty"`
	HouseDelta   decimal.Decimal            `json:"house_delta"`
	Continuable  bool                       `json:"continuable"`
	Error        string                     `json:"error,omitempty"`
	Version      int64                      `json:"version"`
	CreatedAt    time.Time                  `json:"created_at"`
	ResolvedAt   time.Time                  `json:"resolved_at,omitempty"`
	Events       []Event                    `json:"events"`
}

// Participant returns the participant with the given player ID.
func (s Snapshot) Participant(playerID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return Participant{}, false
}

// PlayerStats is the per-player record the ledger keeps alongside the balance.
type PlayerStats struct {
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Ties       int `json:"ties"`
	WinStreak  int `json:"win_streak"`
	LossStreak int `json:"loss_streak"`
	LastRoll   int `json:"last_roll"`
}

// Apply folds one outcome into the stats. Win increments the win streak and
// zeroes the loss streak, loss does the reverse and tie zeroes both.
func (s PlayerStats) Apply(outcome Outcome, roll int) PlayerStats {
	switch {
	case outcome.IsWin():
		s.Wins++
		s.WinStreak++
		s.LossStreak = 0
	case outcome == OutcomeLoss:
		s.Losses++
		s.LossStreak++
		s.WinStreak = 0
	default:
		s.Ties++
		s.WinStreak = 0
		s.LossStreak = 0
	}
	if roll > 0 {
		s.LastRoll = roll
	}
	return s
}

// Player is the ledger's view of an account.
type Player struct {
	ID       string          `json:"id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Stats    PlayerStats     `json:"stats"`
}
