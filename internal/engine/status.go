package engine

import (
	"context"
	"sort"
	"time"

	"github.com/roach88/dicewager/internal/wager"
)

// Status returns the latest snapshot of a session. Sessions no longer in
// memory are served from the archive when one is configured.
func (e *Engine) Status(ctx context.Context, sessionID string) (wager.Snapshot, error) {
	if s, ok := e.lookup(sessionID); ok {
		return s.Snapshot(), nil
	}
	if e.archive != nil {
		snap, err := e.archive.LoadSession(ctx, sessionID)
		if err == nil {
			return snap, nil
		}
		return wager.Snapshot{}, &WagerError{Code: ErrCodeSessionNotFound, Message: "unknown session", SessionID: sessionID, Err: err}
	}
	return wager.Snapshot{}, newError(ErrCodeSessionNotFound, "unknown session").forSession(sessionID)
}

// Wait blocks until the session's version exceeds afterVersion, then
// returns the new snapshot. It is the long-poll behind the front-end's dice
// animation. On ctx expiry it returns the current snapshot and ctx.Err().
func (e *Engine) Wait(ctx context.Context, sessionID string, afterVersion int64) (wager.Snapshot, error) {
	s, ok := e.lookup(sessionID)
	if !ok {
		return e.Status(ctx, sessionID)
	}
	for {
		snap, changed := s.watch()
		if snap.Version > afterVersion {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// ActiveSessions lists the IDs of sessions held in memory, sorted.
func (e *Engine) ActiveSessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EvictArchived drops settled sessions that finished more than olderThan
// ago from memory. Status keeps serving them from the archive. Without an
// archive nothing is evicted. A parent is kept while its continuation is
// live.
func (e *Engine) EvictArchived(olderThan time.Duration) int {
	if e.archive == nil {
		return 0
	}
	cutoff := e.clock.Now().Add(-olderThan)

	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for id, s := range e.sessions {
		done, at := s.settled()
		if !done || at.After(cutoff) {
			continue
		}
		delete(e.sessions, id)
		n++
	}
	if n > 0 {
		e.logger.Debug("evicted settled sessions", "count", n)
	}
	return n
}

// PruneCooldowns forgets cooldown stamps that can no longer block anyone.
func (e *Engine) PruneCooldowns() int {
	n := e.cooldowns.Prune()
	if n > 0 {
		e.logger.Debug("pruned cooldowns", "count", n)
	}
	return n
}
