package engine

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/dicewager/internal/clock"
	"github.com/roach88/dicewager/internal/notify"
)

// Proposal is a bet the player has not confirmed yet. It holds no funds and
// no guard.
type Proposal struct {
	ID        string    `json:"proposal_id"`
	Request   Request   `json:"request"`
	ExpiresAt time.Time `json:"expires_at"`
}

type pendingProposal struct {
	Proposal
	timer clock.Timer
}

// proposals expires unconfirmed bets. take and the expiry timer race;
// removal is compare-and-delete so exactly one of them sees the entry.
type proposals struct {
	mu       sync.Mutex
	clock    clock.Clock
	window   time.Duration
	onExpire func(Proposal)
	pending  map[string]*pendingProposal
	closed   bool
}

func newProposals(clk clock.Clock, window time.Duration, onExpire func(Proposal)) *proposals {
	return &proposals{
		clock:    clk,
		window:   window,
		onExpire: onExpire,
		pending:  make(map[string]*pendingProposal),
	}
}

func (p *proposals) add(id string, req Request) (Proposal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Proposal{}, false
	}
	pp := &pendingProposal{Proposal: Proposal{
		ID:        id,
		Request:   req,
		ExpiresAt: p.clock.Now().Add(p.window),
	}}
	pp.timer = p.clock.AfterFunc(p.window, func() { p.expire(pp) })
	p.pending[id] = pp
	return pp.Proposal, true
}

func (p *proposals) take(id string) (Proposal, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pp, ok := p.pending[id]
	if !ok {
		return Proposal{}, false
	}
	delete(p.pending, id)
	pp.timer.Stop()
	return pp.Proposal, true
}

func (p *proposals) expire(pp *pendingProposal) {
	p.mu.Lock()
	if cur, ok := p.pending[pp.ID]; !ok || cur != pp {
		p.mu.Unlock()
		return
	}
	delete(p.pending, pp.ID)
	p.mu.Unlock()

	if p.onExpire != nil {
		p.onExpire(pp.Proposal)
	}
}

func (p *proposals) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

func (p *proposals) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for id, pp := range p.pending {
		pp.timer.Stop()
		delete(p.pending, id)
	}
}

// Propose validates a bet and holds it for confirmation. Nothing is debited
// or locked; an unconfirmed proposal expires after the confirm window.
func (e *Engine) Propose(ctx context.Context, req Request) (Proposal, error) {
	req, err := e.normalize(req)
	if err != nil {
		return Proposal{}, err
	}
	if _, err := e.ledger.Player(ctx, req.PlayerID); err != nil {
		return Proposal{}, fromLedger(err, req.PlayerID)
	}
	prop, ok := e.proposals.add(e.ids.Generate(), req)
	if !ok {
		return Proposal{}, newError(ErrCodeClosed, "engine is shutting down").forPlayer(req.PlayerID)
	}
	e.logger.Debug("proposal opened", "proposal", prop.ID, "player", req.PlayerID, "stake", req.Stake.String())
	return prop, nil
}

// Confirm admits a proposed bet through Enqueue. An expired or unknown
// proposal fails with PROPOSAL_EXPIRED.
func (e *Engine) Confirm(ctx context.Context, proposalID string) (Result, error) {
	prop, ok := e.proposals.take(proposalID)
	if !ok {
		err := newError(ErrCodeProposalExpired, "proposal %s expired or unknown", proposalID)
		return rejected(err), err
	}
	return e.Enqueue(ctx, prop.Request)
}

// PendingProposals reports how many proposals await confirmation.
func (e *Engine) PendingProposals() int {
	return e.proposals.count()
}

func (e *Engine) onProposalExpired(p Proposal) {
	e.logger.Info("proposal expired", "proposal", p.ID, "player", p.Request.PlayerID)
	e.send(e.ctx, p.Request.PlayerID, notify.Message{
		Kind:   notify.KindProposalExpired,
		Reason: string(ErrCodeProposalExpired),
	})
}
