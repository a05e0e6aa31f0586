package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/testutil"
)

func TestPropose_ConfirmStartsSession(t *testing.T) {
	f := newFixture(t)
	f.ledger.Register("alice", d(1000), "chips")
	f.dice.QueueRolls(3).QueueBiased(3)

	prop, err := f.e.Propose(context.Background(), pvc("alice", 100))
	require.NoError(t, err)
	assert.Equal(t, "session-1", prop.ID)
	assert.Equal(t, testutil.Epoch.Add(f.e.timing.ConfirmWindow), prop.ExpiresAt)
	assert.Equal(t, 1, f.e.PendingProposals())
	assert.True(t, d(1000).Equal(f.balance(t, "alice")), "a proposal holds no funds")
	assert.Zero(t, f.e.Guard().Len(), "a proposal holds no guard")

	res, err := f.e.Confirm(context.Background(), prop.ID)
	require.NoError(t, err)
	assert.Equal(t, AdmissionMatched, res.Admission)
	assert.Zero(t, f.e.PendingProposals())
	f.drain(t)

	_, err = f.e.Confirm(context.Background(), prop.ID)
	assert.True(t, IsCode(err, ErrCodeProposalExpired), "a proposal confirms once")
}

func TestPropose_ExpiresWithoutBalanceEffect(t *testing.T) {
	f := newFixture(t)
	f.ledger.Register("alice", d(1000), "chips")

	prop, err := f.e.Propose(context.Background(), pvc("alice", 100))
	require.NoError(t, err)
	f.clock.Advance(f.e.timing.ConfirmWindow)

	msg, ok := f.notes.WaitFor("alice", notify.KindProposalExpired, time.Second)
	require.True(t, ok)
	assert.Equal(t, string(ErrCodeProposalExpired), msg.Reason)

	res, err := f.e.Confirm(context.Background(), prop.ID)
	assert.True(t, IsCode(err, ErrCodeProposalExpired))
	assert.Equal(t, AdmissionRejected, res.Admission)
	assert.True(t, d(1000).Equal(f.balance(t, "alice")))
	assert.Empty(t, f.ledger.Entries())
}

func TestPropose_Validates(t *testing.T) {
	f := newFixture(t)

	_, err := f.e.Propose(context.Background(), pvc("ghost", 100))
	assert.True(t, IsCode(err, ErrCodeNotRegistered))
	_, err = f.e.Propose(context.Background(), pvc("ghost", -1))
	assert.True(t, IsCode(err, ErrCodeInvalidRequest))
	assert.Zero(t, f.e.PendingProposals())
}

func TestPropose_ConfirmRechecksAdmission(t *testing.T) {
	f := newFixture(t)
	f.ledger.Register("alice", d(1000), "chips")

	prop, err := f.e.Propose(context.Background(), pvc("alice", 100))
	require.NoError(t, err)
	_, err = f.e.Enqueue(context.Background(), pvp("alice", 100))
	require.NoError(t, err)

	_, err = f.e.Confirm(context.Background(), prop.ID)
	assert.True(t, IsCode(err, ErrCodeAlreadyInSession))
}

func TestPropose_AfterClose(t *testing.T) {
	f := newFixture(t)
	f.ledger.Register("alice", d(1000), "chips")

	prop, err := f.e.Propose(context.Background(), pvc("alice", 100))
	require.NoError(t, err)
	f.e.Close()

	_, err = f.e.Confirm(context.Background(), prop.ID)
	assert.True(t, IsCode(err, ErrCodeProposalExpired))
	_, err = f.e.Propose(context.Background(), pvc("alice", 100))
	assert.True(t, IsCode(err, ErrCodeClosed))
}
