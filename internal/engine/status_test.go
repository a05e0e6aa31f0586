package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/wager"
)

func TestStatus_UnknownSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.e.Status(context.Background(), "nope")
	assert.True(t, IsCode(err, ErrCodeSessionNotFound))
}

func TestWait_ReturnsOnChange(t *testing.T) {
	f := newFixture(t)
	f.ledger.Register("alice", d(1000), "chips")
	f.dice.QueueRolls(4).QueueBiased(2)

	req := pvc("alice", 100)
	req.PowerUp = wager.PowerUpReroll
	res, err := f.e.Enqueue(context.Background(), req)
	require.NoError(t, err)
	_, ok := f.notes.WaitFor("alice", notify.KindRerollOffered, time.Second)
	require.True(t, ok)

	before := f.status(t, res.SessionID)
	assert.Equal(t, wager.StateRollingPlayer, before.State)

	got := make(chan wager.Snapshot, 1)
	go func() {
		snap, _ := f.e.Wait(context.Background(), res.SessionID, before.Version)
		got <- snap
	}()

	require.True(t, f.e.SubmitDecision("alice", false))
	select {
	case snap := <-got:
		assert.Greater(t, snap.Version, before.Version)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
	}
	f.drain(t)
}

func TestWait_ContextExpiry(t *testing.T) {
	f := newFixture(t)
	f.ledger.Register("alice", d(1000), "chips")
	f.dice.QueueRolls(4).QueueBiased(4)

	res, err := f.e.Enqueue(context.Background(), pvc("alice", 100))
	require.NoError(t, err)
	f.drain(t)
	final := f.status(t, res.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	snap, err := f.e.Wait(ctx, res.SessionID, final.Version)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, final.Version, snap.Version)

	snap, err = f.e.Wait(context.Background(), res.SessionID, 0)
	require.NoError(t, err)
	assert.Equal(t, final.Version, snap.Version)
}

func TestStatus_VersionsIncrease(t *testing.T) {
	f := newFixture(t)
	f.ledger.Register("alice", d(1000), "chips")
	f.dice.QueueRolls(5).QueueBiased(1)

	res, err := f.e.Enqueue(context.Background(), pvc("alice", 100))
	require.NoError(t, err)
	f.drain(t)

	snap := f.status(t, res.SessionID)
	require.NotEmpty(t, snap.Events)
	for i := 1; i < len(snap.Events); i++ {
		assert.Greater(t, snap.Events[i].Seq, snap.Events[i-1].Seq)
	}
	assert.Equal(t, []string{
		wager.EventEscrowed,
		wager.EventRolled,
		wager.EventRolled,
		wager.EventSettled,
		wager.EventResolved,
	}, eventKinds(snap))
}

func TestEvictArchived_KeepsLiveSessions(t *testing.T) {
	f := newFixture(t)
	f.ledger.Register("alice", d(1000), "chips")

	// Without an archive nothing leaves memory.
	_, err := f.e.Enqueue(context.Background(), pvp("alice", 100))
	require.NoError(t, err)
	assert.Zero(t, f.e.EvictArchived(0))
}

func TestPruneCooldowns(t *testing.T) {
	timing := testTiming()
	timing.Cooldown = CooldownPolicy{Base: time.Second, Unit: d(100), Cap: 1}
	f := newFixture(t, WithTiming(timing))
	f.ledger.Register("alice", d(1000), "chips")
	f.dice.QueueRolls(3).QueueBiased(3)

	_, err := f.e.Enqueue(context.Background(), pvc("alice", 100))
	require.NoError(t, err)
	f.drain(t)

	assert.Zero(t, f.e.PruneCooldowns())
	f.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, f.e.PruneCooldowns())
}
