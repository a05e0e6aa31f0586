package testutil

import (
	"sync"

	"github.com/roach88/dicewager/internal/dice"
	"github.com/roach88/dicewager/internal/wager"
)

// ScriptedDice is a dice.Roller that returns queued values.
//
// Roll and RollBiased panic when their queue is exhausted, to catch a test
// that rolled more often than it scripted. Chance returns false once its
// queue is empty, so tests that do not care about the jackpot draw need not
// script it.
type ScriptedDice struct {
	mu      sync.Mutex
	rolls   []int
	biased  []int
	chances []bool
}

var _ dice.Roller = (*ScriptedDice)(nil)

// NewScriptedDice creates dice with the given uniform rolls queued.
func NewScriptedDice(rolls ...int) *ScriptedDice {
	return &ScriptedDice{rolls: rolls}
}

// QueueRolls appends uniform rolls.
func (d *ScriptedDice) QueueRolls(v ...int) *ScriptedDice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rolls = append(d.rolls, v...)
	return d
}

// QueueBiased appends bot rolls.
func (d *ScriptedDice) QueueBiased(v ...int) *ScriptedDice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.biased = append(d.biased, v...)
	return d
}

// QueueChances appends jackpot draw results.
func (d *ScriptedDice) QueueChances(v ...bool) *ScriptedDice {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chances = append(d.chances, v...)
	return d
}

// Roll implements dice.Roller.
func (d *ScriptedDice) Roll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.rolls) == 0 {
		panic("ScriptedDice: rolls exhausted")
	}
	v := d.rolls[0]
	d.rolls = d.rolls[1:]
	return v
}

// RollBiased implements dice.Roller. The difficulty is ignored.
func (d *ScriptedDice) RollBiased(wager.Difficulty) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.biased) == 0 {
		panic("ScriptedDice: biased rolls exhausted")
	}
	v := d.biased[0]
	d.biased = d.biased[1:]
	return v
}

// Chance implements dice.Roller. The probability is ignored.
func (d *ScriptedDice) Chance(float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.chances) == 0 {
		return false
	}
	v := d.chances[0]
	d.chances = d.chances[1:]
	return v
}

// Remaining reports how many scripted values are left in each queue.
func (d *ScriptedDice) Remaining() (rolls, biased, chances int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rolls), len(d.biased), len(d.chances)
}
