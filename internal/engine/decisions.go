package engine

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/dicewager/internal/clock"
)

// Decision is the answer to a reroll offer.
type Decision struct {
	Reroll bool
	// TimedOut is set when no answer arrived inside the window; Reroll is
	// then false (keep the original roll).
	TimedOut bool
}

// Decisions holds one pending reroll decision per player.
//
// Each pending decision is a future resolved by whichever comes first: the
// player's Submit or the window timer. Resolution is compare-and-delete on
// the pending map, so exactly one of them wins.
type Decisions struct {
	mu      sync.Mutex
	clock   clock.Clock
	pending map[string]*PendingDecision
}

// PendingDecision is an open reroll offer.
type PendingDecision struct {
	playerID string
	ch       chan Decision
	timer    clock.Timer
}

// NewDecisions creates an empty registry.
func NewDecisions(clk clock.Clock) *Decisions {
	return &Decisions{clock: clk, pending: make(map[string]*PendingDecision)}
}

// Open registers a decision for playerID that defaults to keep after
// window. A previous pending decision for the same player resolves as keep.
func (d *Decisions) Open(playerID string, window time.Duration) *PendingDecision {
	p := &PendingDecision{playerID: playerID, ch: make(chan Decision, 1)}

	d.mu.Lock()
	old := d.pending[playerID]
	d.pending[playerID] = p
	p.timer = d.clock.AfterFunc(window, func() {
		d.resolve(p, Decision{TimedOut: true})
	})
	d.mu.Unlock()

	if old != nil {
		old.timer.Stop()
		old.ch <- Decision{}
	}
	return p
}

// Submit answers the player's pending decision. Returns false if none is
// pending (already answered, timed out, or never offered).
func (d *Decisions) Submit(playerID string, reroll bool) bool {
	d.mu.Lock()
	p, ok := d.pending[playerID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	return d.resolve(p, Decision{Reroll: reroll})
}

// Pending reports whether the player has an open decision.
func (d *Decisions) Pending(playerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[playerID]
	return ok
}

func (d *Decisions) resolve(p *PendingDecision, dec Decision) bool {
	d.mu.Lock()
	if d.pending[p.playerID] != p {
		d.mu.Unlock()
		return false
	}
	delete(d.pending, p.playerID)
	d.mu.Unlock()

	p.timer.Stop()
	p.ch <- dec
	return true
}

// Wait blocks until the decision resolves or ctx is done. On ctx done the
// decision is withdrawn.
func (d *Decisions) Wait(ctx context.Context, p *PendingDecision) (Decision, error) {
	select {
	case dec := <-p.ch:
		return dec, nil
	case <-ctx.Done():
		d.mu.Lock()
		if d.pending[p.playerID] == p {
			delete(d.pending, p.playerID)
			p.timer.Stop()
		}
		d.mu.Unlock()
		return Decision{}, ctx.Err()
	}
}
