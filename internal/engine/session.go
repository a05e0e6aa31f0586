package engine

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/clock"
	"github.com/roach88/dicewager/internal/payout"
	"github.com/roach88/dicewager/internal/wager"
)

// Session is one WagerSession.
//
// All mutation goes through transition and the record helpers, which hold
// the session mutex, stamp a new version from the engine's sequence and wake
// Wait callers. Only one goroutine drives a session between Escrowed and
// Resolved; the state checks in transition make a second resolution
// impossible even if a caller races it.
type Session struct {
	mu  sync.Mutex
	seq *clock.Sequence

	id           string
	parentID     string
	continuedBy  string
	mode         wager.Mode
	difficulty   wager.Difficulty
	participants []wager.Participant
	previous     map[string]int
	rolls        map[string]int
	state        wager.State
	res          *payout.Resolution
	continuable  bool
	timer        clock.Timer
	originalDie  int
	errMsg       string
	version      int64
	createdAt    time.Time
	resolvedAt   time.Time
	events       []wager.Event
	changed      chan struct{}
}

func newSession(seq *clock.Sequence, id string, mode wager.Mode, diff wager.Difficulty, parts []wager.Participant, previous map[string]int, now time.Time) *Session {
	s := &Session{
		seq:          seq,
		id:           id,
		mode:         mode,
		difficulty:   diff,
		participants: parts,
		previous:     previous,
		rolls:        make(map[string]int),
		state:        wager.StateCreated,
		createdAt:    now,
		changed:      make(chan struct{}),
	}
	s.version = seq.Next()
	return s
}

// newContinuation creates the double-or-nothing session for a winner of
// parent. The house covers the other side.
func newContinuation(parent *Session, id, winner string, atRisk decimal.Decimal, originalDie int, now time.Time) *Session {
	parts := []wager.Participant{
		{PlayerID: winner, Stake: atRisk, PowerUp: wager.PowerUpNone, PowerUpCost: decimal.Zero, Escrowed: decimal.Zero},
		{PlayerID: wager.BotPlayerID, Stake: atRisk, PowerUp: wager.PowerUpNone, PowerUpCost: decimal.Zero, Escrowed: decimal.Zero, Bot: true},
	}
	s := newSession(parent.seq, id, parent.mode, parent.difficulty, parts, nil, now)
	s.parentID = parent.id
	s.originalDie = originalDie
	s.state = wager.StateContinuationOffered
	return s
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() wager.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves to `to` if the current state is one of from.
func (s *Session) transition(to wager.State, from ...wager.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(to, from...)
}

func (s *Session) transitionLocked(to wager.State, from ...wager.State) error {
	for _, f := range from {
		if s.state == f {
			s.state = to
			s.bumpLocked()
			return nil
		}
	}
	return newError(ErrCodeInvalidTransition, "cannot move from %s to %s", s.state, to).forSession(s.id)
}

func (s *Session) bumpLocked() {
	s.version = s.seq.Next()
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Session) recordLocked(kind, playerID string, value int, detail string) {
	s.bumpLocked()
	s.events = append(s.events, wager.Event{
		Seq:      s.version,
		Kind:     kind,
		PlayerID: playerID,
		Value:    value,
		Detail:   detail,
	})
}

func (s *Session) record(kind, playerID string, value int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(kind, playerID, value, detail)
}

// setRoll stores a face and records it under kind.
func (s *Session) setRoll(kind, playerID string, die int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolls[playerID] = die
	s.recordLocked(kind, playerID, die, "")
}

// markEscrowed records a debit taken for playerID. It returns false, and
// records nothing, once the session has been aborted: that debit has no
// refund coming and the caller must return it.
func (s *Session) markEscrowed(playerID string, amount decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == wager.StateAborted {
		return false
	}
	for i := range s.participants {
		if s.participants[i].PlayerID == playerID {
			s.participants[i].Escrowed = amount
		}
	}
	s.recordLocked(wager.EventEscrowed, playerID, 0, amount.String())
	return true
}

func (s *Session) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errMsg == "" {
		s.errMsg = msg
	} else {
		s.errMsg += "; " + msg
	}
	s.bumpLocked()
}

// humans returns the non-bot participants in seat order.
func (s *Session) humans() []wager.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []wager.Participant
	for _, p := range s.participants {
		if p.Human() {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) seat(i int) wager.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participants[i]
}

func (s *Session) roll(playerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rolls[playerID]
}

// resolve stores the resolution and moves to `to`. Fails if the session is
// not in from, which is what makes resolution happen exactly once. offer
// opens the continuation window in the same step.
func (s *Session) resolve(res payout.Resolution, now time.Time, to, from wager.State, offer bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(to, from); err != nil {
		return err
	}
	r := res
	s.res = &r
	s.resolvedAt = now
	s.continuable = offer
	s.recordLocked(wager.EventResolved, res.Winner, 0, string(res.Outcome))
	return nil
}

// unpaid lists the states a session can abort from: nothing has been paid
// out yet.
var unpaid = []wager.State{
	wager.StateCreated,
	wager.StateEscrowed,
	wager.StateRollingPlayer,
	wager.StateRollingOpponent,
	wager.StateContinuationOffered,
}

// markAborted moves to Aborted from any state that has not paid out and
// returns the participants whose escrow must be refunded.
func (s *Session) markAborted(cause error, now time.Time) ([]wager.Participant, bool) {
	return s.markAbortedFrom(cause, now, unpaid...)
}

// markAbortedFrom is markAborted restricted to the given source states,
// checked under the same lock that changes the state.
func (s *Session) markAbortedFrom(cause error, now time.Time, from ...wager.State) ([]wager.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(from, s.state) {
		return nil, false
	}
	s.state = wager.StateAborted
	s.resolvedAt = now
	s.continuable = false
	if s.timer != nil {
		s.timer.Stop()
	}
	if cause != nil {
		s.errMsg = cause.Error()
	}
	detail := string(CodeOf(cause))
	if detail == "" && cause != nil {
		detail = cause.Error()
	}
	s.recordLocked(wager.EventAborted, "", 0, detail)

	var refunds []wager.Participant
	for _, p := range s.participants {
		if p.Human() && p.Escrowed.IsPositive() {
			refunds = append(refunds, p)
		}
	}
	return refunds, true
}

// claimContinuation closes the window, moves to ContinuationOffered and
// returns what the child session needs. newID is only called on success.
func (s *Session) claimContinuation(newID func() string) (childID, winner string, atRisk decimal.Decimal, originalDie int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.continuable || s.res == nil {
		return "", "", decimal.Zero, 0, newError(ErrCodeInvalidTransition, "no continuation on offer in state %s", s.state).forSession(s.id)
	}
	if err := s.transitionLocked(wager.StateContinuationOffered, wager.StateResolved); err != nil {
		return "", "", decimal.Zero, 0, err
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.continuable = false
	winner = s.res.Winner
	childID = newID()
	s.continuedBy = childID
	s.recordLocked(wager.EventContinuationID, winner, 0, childID)
	return childID, winner, s.res.Credit(winner), s.rolls[winner], nil
}

// closeWindow ends an unclaimed continuation window. kind is the event to
// record. Returns the winner whose guard can be released.
func (s *Session) closeWindow(kind string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != wager.StateResolved || !s.continuable {
		return "", false
	}
	s.continuable = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	winner := s.res.Winner
	s.recordLocked(kind, winner, 0, "")
	return winner, true
}

// concludeContinuation moves a parent from ContinuationOffered to
// ContinuationResolved, recording how the child ended.
func (s *Session) concludeContinuation(kind, detail string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.transitionLocked(wager.StateContinuationResolved, wager.StateContinuationOffered); err != nil {
		return false
	}
	s.recordLocked(kind, "", 0, detail)
	return true
}

func (s *Session) setTimer(t clock.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timer = t
}

func (s *Session) stopTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// settled reports whether the session can be dropped from memory: it is in
// a terminal state, or resolved with no continuation on offer.
func (s *Session) settled() (bool, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := s.state.Terminal() || (s.state == wager.StateResolved && !s.continuable)
	return done, s.resolvedAt
}

// Snapshot returns a deep copy of the session.
func (s *Session) Snapshot() wager.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() wager.Snapshot {
	snap := wager.Snapshot{
		SessionID:    s.id,
		ParentID:     s.parentID,
		ContinuedBy:  s.continuedBy,
		Mode:         s.mode,
		Difficulty:   s.difficulty,
		State:        s.state,
		Participants: append([]wager.Participant(nil), s.participants...),
		Rolls:        make(map[string]int, len(s.rolls)),
		Pot:          decimal.Zero,
		Payout:       decimal.Zero,
		Commission:   decimal.Zero,
		HouseDelta:   decimal.Zero,
		Continuable:  s.continuable,
		Error:        s.errMsg,
		Version:      s.version,
		CreatedAt:    s.createdAt,
		ResolvedAt:   s.resolvedAt,
		Events:       append([]wager.Event(nil), s.events...),
	}
	for k, v := range s.rolls {
		snap.Rolls[k] = v
	}
	for _, p := range s.participants {
		snap.Pot = snap.Pot.Add(p.Stake)
	}
	if s.res != nil {
		snap.Outcome = s.res.Outcome
		snap.Winner = s.res.Winner
		snap.Pot = s.res.Pot
		snap.Payout = s.res.Payout
		snap.Commission = s.res.Commission
		snap.HouseDelta = s.res.HouseDelta
		snap.Credits = make(map[string]decimal.Decimal, len(s.res.Credits))
		for k, v := range s.res.Credits {
			snap.Credits[k] = v
		}
	}
	return snap
}

// watch returns the current snapshot and a channel closed on the next
// change.
func (s *Session) watch() (wager.Snapshot, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(), s.changed
}

func (s *Session) String() string {
	return fmt.Sprintf("session %s (%s)", s.id, s.State())
}
