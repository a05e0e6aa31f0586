package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	c := NewManualClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())
}

func TestManualClock_FiresInDeadlineOrder(t *testing.T) {
	c := NewManualClock(time.Time{})
	var fired []string
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "c") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })

	c.Advance(time.Second)
	assert.Equal(t, []string{"a"}, fired)
	assert.Equal(t, 2, c.Pending())

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, Epoch.Add(6*time.Second), c.Now())
}

func TestManualClock_Stop(t *testing.T) {
	c := NewManualClock(time.Time{})
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Minute)
	assert.False(t, fired)
}

func TestManualClock_StopAfterFire(t *testing.T) {
	c := NewManualClock(time.Time{})
	timer := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, timer.Stop(), "fired timer cannot be stopped")
}

func TestManualClock_CallbackMayRearm(t *testing.T) {
	c := NewManualClock(time.Time{})
	count := 0
	var rearm func()
	rearm = func() {
		count++
		if count < 3 {
			c.AfterFunc(time.Second, rearm)
		}
	}
	c.AfterFunc(time.Second, rearm)

	c.Advance(time.Second)
	c.Advance(time.Second)
	c.Advance(time.Second)
	assert.Equal(t, 3, count)
}
