package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dicewager/internal/testutil"
)

func entry(pid string, stake string) *QueueEntry {
	return &QueueEntry{PlayerID: pid, Stake: decimal.RequireFromString(stake)}
}

func TestMatchmakingQueue_PairsSameStake(t *testing.T) {
	q := NewMatchmakingQueue(testutil.NewManualClock(time.Time{}), time.Minute, nil)

	partner, ok := q.Offer(entry("a", "100"))
	require.True(t, ok)
	assert.Nil(t, partner)

	partner, ok = q.Offer(entry("b", "100.00"))
	require.True(t, ok)
	require.NotNil(t, partner)
	assert.Equal(t, "a", partner.PlayerID)
	assert.Zero(t, q.Len())
}

func TestMatchmakingQueue_DifferentStakesNeverMatch(t *testing.T) {
	q := NewMatchmakingQueue(testutil.NewManualClock(time.Time{}), time.Minute, nil)

	for _, e := range []*QueueEntry{entry("a", "100"), entry("b", "200"), entry("c", "300")} {
		partner, ok := q.Offer(e)
		require.True(t, ok)
		assert.Nil(t, partner)
	}
	assert.Equal(t, 3, q.Len())
}

func TestMatchmakingQueue_FIFO(t *testing.T) {
	q := NewMatchmakingQueue(testutil.NewManualClock(time.Time{}), time.Minute, nil)

	q.Offer(entry("a", "100"))
	q.Offer(entry("b", "100"))
	partner, _ := q.Offer(entry("c", "100"))
	require.NotNil(t, partner)
	assert.Equal(t, "a", partner.PlayerID)

	partner, _ = q.Offer(entry("d", "100"))
	require.NotNil(t, partner)
	assert.Equal(t, "b", partner.PlayerID)
}

func TestMatchmakingQueue_RejectsDuplicatePlayer(t *testing.T) {
	q := NewMatchmakingQueue(testutil.NewManualClock(time.Time{}), time.Minute, nil)

	_, ok := q.Offer(entry("a", "100"))
	require.True(t, ok)
	_, ok = q.Offer(entry("a", "200"))
	assert.False(t, ok)
}

func TestMatchmakingQueue_Eviction(t *testing.T) {
	clk := testutil.NewManualClock(time.Time{})
	var evicted []string
	q := NewMatchmakingQueue(clk, 30*time.Second, func(e QueueEntry) {
		evicted = append(evicted, e.PlayerID)
	})

	q.Offer(entry("a", "100"))
	clk.Advance(10 * time.Second)
	q.Offer(entry("b", "200"))

	clk.Advance(20 * time.Second)
	assert.Equal(t, []string{"a"}, evicted)
	_, waiting := q.Waiting("b")
	assert.True(t, waiting)

	clk.Advance(10 * time.Second)
	assert.Equal(t, []string{"a", "b"}, evicted)
	assert.Zero(t, q.Len())
}

func TestMatchmakingQueue_MatchedEntryIsNeverEvicted(t *testing.T) {
	clk := testutil.NewManualClock(time.Time{})
	evictions := 0
	q := NewMatchmakingQueue(clk, 30*time.Second, func(QueueEntry) { evictions++ })

	a := entry("a", "100")
	q.Offer(a)
	q.Offer(entry("b", "100"))

	// Even a timer that fires after the match is a no-op.
	q.evict(a)
	clk.Advance(time.Minute)
	assert.Zero(t, evictions)
}

func TestMatchmakingQueue_Cancel(t *testing.T) {
	clk := testutil.NewManualClock(time.Time{})
	q := NewMatchmakingQueue(clk, 30*time.Second, nil)

	q.Offer(entry("a", "100"))
	assert.True(t, q.Cancel("a"))
	assert.False(t, q.Cancel("a"))
	assert.Zero(t, clk.Pending())

	partner, _ := q.Offer(entry("b", "100"))
	assert.Nil(t, partner, "cancelled entry does not match")
}

func TestMatchmakingQueue_Close(t *testing.T) {
	q := NewMatchmakingQueue(testutil.NewManualClock(time.Time{}), time.Minute, nil)
	q.Offer(entry("a", "100"))
	q.Offer(entry("b", "200"))

	drained := q.Close()
	assert.Len(t, drained, 2)
	_, ok := q.Offer(entry("c", "100"))
	assert.False(t, ok)
	assert.Nil(t, q.Close())
}

func TestMatchmakingQueue_ConcurrentOffersPairEveryone(t *testing.T) {
	q := NewMatchmakingQueue(testutil.NewManualClock(time.Time{}), time.Minute, nil)

	const n = 100
	var mu sync.Mutex
	pairs := 0
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			partner, ok := q.Offer(entry(string(rune('A'+i%26))+string(rune('a'+i/26)), "100"))
			if ok && partner != nil {
				mu.Lock()
				pairs++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n/2, pairs)
	assert.Zero(t, q.Len())
}
