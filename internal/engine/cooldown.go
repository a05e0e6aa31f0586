package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/clock"
)

// CooldownPolicy scales the pause between sessions with the stake:
// Base * (1 + min(stake/Unit, Cap)).
type CooldownPolicy struct {
	Base time.Duration
	Unit decimal.Decimal
	Cap  float64
}

// DefaultCooldownPolicy returns the production policy.
func DefaultCooldownPolicy() CooldownPolicy {
	return CooldownPolicy{
		Base: 5 * time.Second,
		Unit: decimal.NewFromInt(500),
		Cap:  5,
	}
}

// Window returns the cooldown length for a stake.
func (p CooldownPolicy) Window(stake decimal.Decimal) time.Duration {
	if p.Base <= 0 {
		return 0
	}
	ratio := 0.0
	if p.Unit.IsPositive() && stake.IsPositive() {
		ratio = stake.Div(p.Unit).InexactFloat64()
	}
	if ratio > p.Cap {
		ratio = p.Cap
	}
	if ratio < 0 {
		ratio = 0
	}
	return time.Duration(float64(p.Base) * (1 + ratio))
}

// MaxWindow is the longest window any stake can produce.
func (p CooldownPolicy) MaxWindow() time.Duration {
	c := p.Cap
	if c < 0 {
		c = 0
	}
	return time.Duration(float64(p.Base) * (1 + c))
}

// CooldownRegistry tracks when each player last started a session.
type CooldownRegistry struct {
	mu     sync.Mutex
	clock  clock.Clock
	policy CooldownPolicy
	last   map[string]time.Time
}

// NewCooldownRegistry creates an empty registry.
func NewCooldownRegistry(clk clock.Clock, policy CooldownPolicy) *CooldownRegistry {
	return &CooldownRegistry{
		clock:  clk,
		policy: policy,
		last:   make(map[string]time.Time),
	}
}

// Remaining returns how long playerID must wait before starting a session
// with the given stake. Zero means the player may start now.
func (r *CooldownRegistry) Remaining(playerID string, stake decimal.Decimal) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.last[playerID]
	if !ok {
		return 0
	}
	rem := last.Add(r.policy.Window(stake)).Sub(r.clock.Now())
	if rem < 0 {
		return 0
	}
	return rem
}

// Stamp records now as the player's last session start.
func (r *CooldownRegistry) Stamp(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last[playerID] = r.clock.Now()
}

// Prune drops entries that can no longer block any stake. Returns how many
// were removed.
func (r *CooldownRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.clock.Now().Add(-r.policy.MaxWindow())
	n := 0
	for id, last := range r.last {
		if !last.After(cutoff) {
			delete(r.last, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked players.
func (r *CooldownRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.last)
}
