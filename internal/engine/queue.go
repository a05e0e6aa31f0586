package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/clock"
	"github.com/roach88/dicewager/internal/wager"
)

// QueueEntry is a player waiting for a PvP opponent.
type QueueEntry struct {
	PlayerID   string
	Stake      decimal.Decimal
	PowerUp    wager.PowerUp
	EnqueuedAt time.Time

	// previous is the player's last recorded roll at enqueue time.
	previous int
	timer    clock.Timer
}

// MatchmakingQueue pairs waiting players FIFO within a stake bucket.
//
// Entries with different stakes never match. Each entry carries an eviction
// timer; eviction, cancel and match all remove entries by compare-and-delete
// under one mutex, so an entry that was just matched can never be evicted
// and vice versa.
//
// Thread-safety: all methods are safe for concurrent use. onEvict runs
// without the mutex held.
type MatchmakingQueue struct {
	mu       sync.Mutex
	clock    clock.Clock
	timeout  time.Duration
	buckets  map[string][]*QueueEntry
	byPlayer map[string]*QueueEntry
	onEvict  func(QueueEntry)
	closed   bool
}

// NewMatchmakingQueue creates an empty queue. onEvict is called for every
// entry that times out; it may be nil.
func NewMatchmakingQueue(clk clock.Clock, timeout time.Duration, onEvict func(QueueEntry)) *MatchmakingQueue {
	return &MatchmakingQueue{
		clock:    clk,
		timeout:  timeout,
		buckets:  make(map[string][]*QueueEntry),
		byPlayer: make(map[string]*QueueEntry),
		onEvict:  onEvict,
	}
}

func bucketKey(stake decimal.Decimal) string {
	// String trims trailing zeros, so 100 and 100.00 share a bucket.
	return stake.String()
}

// Offer matches e against the oldest entry with the same stake, or queues
// it. Returns the partner when a pair formed. Returns false if the queue is
// closed or the player is already queued.
func (q *MatchmakingQueue) Offer(e *QueueEntry) (*QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false
	}
	if _, queued := q.byPlayer[e.PlayerID]; queued {
		return nil, false
	}

	key := bucketKey(e.Stake)
	if bucket := q.buckets[key]; len(bucket) > 0 {
		partner := bucket[0]
		q.removeLocked(partner)
		if partner.timer != nil {
			partner.timer.Stop()
		}
		return partner, true
	}

	if e.EnqueuedAt.IsZero() {
		e.EnqueuedAt = q.clock.Now()
	}
	q.buckets[key] = append(q.buckets[key], e)
	q.byPlayer[e.PlayerID] = e
	if q.timeout > 0 {
		e.timer = q.clock.AfterFunc(q.timeout, func() { q.evict(e) })
	}
	return nil, true
}

// Cancel removes the player's entry if still queued.
func (q *MatchmakingQueue) Cancel(playerID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.byPlayer[playerID]
	if !ok {
		return false
	}
	q.removeLocked(e)
	if e.timer != nil {
		e.timer.Stop()
	}
	return true
}

// Waiting returns a copy of the player's entry if queued.
func (q *MatchmakingQueue) Waiting(playerID string) (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.byPlayer[playerID]
	if !ok {
		return QueueEntry{}, false
	}
	return *e, true
}

// Len returns the number of queued entries.
func (q *MatchmakingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.byPlayer)
}

// Close stops every timer and returns the entries that were still queued.
// Offer fails afterwards.
func (q *MatchmakingQueue) Close() []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	var drained []QueueEntry
	for _, bucket := range q.buckets {
		for _, e := range bucket {
			if e.timer != nil {
				e.timer.Stop()
			}
			drained = append(drained, *e)
		}
	}
	q.buckets = make(map[string][]*QueueEntry)
	q.byPlayer = make(map[string]*QueueEntry)
	return drained
}

// evict is the timer callback. It only removes e if e itself is still
// queued.
func (q *MatchmakingQueue) evict(e *QueueEntry) {
	q.mu.Lock()
	if q.byPlayer[e.PlayerID] != e {
		q.mu.Unlock()
		return
	}
	q.removeLocked(e)
	q.mu.Unlock()

	if q.onEvict != nil {
		q.onEvict(*e)
	}
}

func (q *MatchmakingQueue) removeLocked(e *QueueEntry) {
	delete(q.byPlayer, e.PlayerID)
	key := bucketKey(e.Stake)
	bucket := q.buckets[key]
	for i, other := range bucket {
		if other == e {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if len(bucket) == 0 {
		delete(q.buckets, key)
	} else {
		q.buckets[key] = bucket
	}
}
