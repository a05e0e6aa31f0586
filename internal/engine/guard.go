package engine

import "sync"

// SessionGuard enforces at most one active session (or queue slot) per
// player.
//
// Each entry records a holder: the session ID, or a queue marker while the
// player waits for an opponent. Engine code releases with ReleaseIf so a
// late cleanup from an old holder can never free a slot that a newer
// session owns.
type SessionGuard struct {
	mu     sync.Mutex
	active map[string]string
}

// NewSessionGuard creates an empty guard.
func NewSessionGuard() *SessionGuard {
	return &SessionGuard{active: make(map[string]string)}
}

// TryAcquire claims the player for holder. Fails fast if already held.
func (g *SessionGuard) TryAcquire(playerID, holder string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.active[playerID]; held {
		return false
	}
	g.active[playerID] = holder
	return true
}

// Rebind moves the player from one holder to another. Returns false if the
// player is not held by from.
func (g *SessionGuard) Rebind(playerID, from, to string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active[playerID] != from {
		return false
	}
	g.active[playerID] = to
	return true
}

// Release frees the player unconditionally.
func (g *SessionGuard) Release(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, playerID)
}

// ReleaseIf frees the player only if holder still owns the slot.
func (g *SessionGuard) ReleaseIf(playerID, holder string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, held := g.active[playerID]; !held || cur != holder {
		return false
	}
	delete(g.active, playerID)
	return true
}

// Holder returns who holds the player.
func (g *SessionGuard) Holder(playerID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	h, ok := g.active[playerID]
	return h, ok
}

// Len returns the number of held players.
func (g *SessionGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}
