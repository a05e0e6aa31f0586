package dice

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dicewager/internal/wager"
)

func TestRoll_Range(t *testing.T) {
	d := NewSeeded(42)
	for i := 0; i < 1000; i++ {
		v := d.Roll()
		require.True(t, Valid(v), "roll %d out of range", v)
	}
}

func TestRoll_Deterministic(t *testing.T) {
	a := NewSeeded(7)
	b := NewSeeded(7)
	for i := 0; i < 50; i++ {
		assert.Equal(t, a.Roll(), b.Roll())
		assert.Equal(t, a.RollBiased(wager.DifficultyHard), b.RollBiased(wager.DifficultyHard))
	}
}

func TestRollBiased_Easy(t *testing.T) {
	d := NewSeeded(1)
	for i := 0; i < 2000; i++ {
		v := d.RollBiased(wager.DifficultyEasy)
		require.GreaterOrEqual(t, v, 1)
		require.LessOrEqual(t, v, 4)
	}
}

func TestBiasedFace_HardDistribution(t *testing.T) {
	counts := map[int]int{}
	for slot := 0; slot < Slots(wager.DifficultyHard); slot++ {
		counts[BiasedFace(wager.DifficultyHard, slot)]++
	}

	assert.Equal(t, 2, counts[6], "six takes two slots")
	for face := 1; face <= 5; face++ {
		assert.Equal(t, 1, counts[face], "face %d", face)
	}
}

func TestBiasedFace_Normal(t *testing.T) {
	for slot := 0; slot < Slots(wager.DifficultyNormal); slot++ {
		assert.Equal(t, slot+1, BiasedFace(wager.DifficultyNormal, slot))
	}
}

func TestRollBiased_HardFavoursSix(t *testing.T) {
	d := NewSeeded(99)
	counts := map[int]int{}
	const n = 70000
	for i := 0; i < n; i++ {
		counts[d.RollBiased(wager.DifficultyHard)]++
	}

	// 2/7 vs 1/7; allow generous slack.
	assert.Greater(t, counts[6], counts[1]*3/2)
	assert.InDelta(t, float64(n)*2/7, float64(counts[6]), float64(n)*0.02)
}

func TestChance_Bounds(t *testing.T) {
	d := NewSeeded(3)
	assert.False(t, d.Chance(0))
	assert.True(t, d.Chance(1))

	hits := 0
	for i := 0; i < 100000; i++ {
		if d.Chance(0.01) {
			hits++
		}
	}
	assert.InDelta(t, 1000, hits, 300)
}

func TestDice_ConcurrentUse(t *testing.T) {
	d := NewSeeded(5)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = d.Roll()
				_ = d.Chance(0.5)
			}
		}()
	}
	wg.Wait()
}

func TestNew_Seeded(t *testing.T) {
	d, err := New()
	require.NoError(t, err)
	assert.True(t, Valid(d.Roll()))
}
