package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLocks_OppositeOrderDoesNotDeadlock(t *testing.T) {
	k := newKeyedLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys := []string{"alice", "bob"}
			if i%2 == 1 {
				keys = []string{"bob", "alice"}
			}
			unlock := k.Lock(keys...)
			counter++
			unlock()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, counter)
	assert.Empty(t, k.locks, "idle keys are dropped")
}

func TestKeyedLocks_DuplicateKeys(t *testing.T) {
	k := newKeyedLocks()

	unlock := k.Lock("alice", "alice")
	unlock()

	assert.Empty(t, k.locks)
}
