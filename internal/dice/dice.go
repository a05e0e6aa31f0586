// Package dice supplies die values for wager sessions.
//
// # Determinism
//
// A Dice built with NewSeeded is deterministic: the same seed yields the same
// sequence of Roll, RollBiased and Chance results, in call order. Production
// callers use New, which seeds from crypto/rand.
//
// # Bias
//
// RollBiased shapes the bot opponent's face distribution:
//
//   - easy:   uniform over 1..4
//   - normal: uniform over 1..6
//   - hard:   6 carries two slots out of seven, every other face one
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"

	"github.com/roach88/dicewager/internal/wager"
)

// Faces is the number of sides on every die in the game.
const Faces = 6

// Roller is the RNG collaborator consumed by the engine.
type Roller interface {
	// Roll returns a uniform face in 1..6.
	Roll() int
	// RollBiased returns a face drawn from the difficulty's distribution.
	RollBiased(d wager.Difficulty) int
	// Chance returns true with probability p.
	Chance(p float64) bool
}

// Dice is a Roller backed by math/rand. Safe for concurrent use.
type Dice struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates dice seeded from crypto/rand.
func New() (*Dice, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewSeeded(seed), nil
}

// NewSeeded creates dice with a fixed seed.
func NewSeeded(seed int64) *Dice {
	return &Dice{rng: rand.New(rand.NewSource(seed))}
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// Roll returns a uniform face.
func (d *Dice) Roll() int {
	return d.intn(Faces) + 1
}

// RollBiased returns a face from the difficulty's distribution.
func (d *Dice) RollBiased(diff wager.Difficulty) int {
	return BiasedFace(diff, d.intn(Slots(diff)))
}

// Chance returns true with probability p. p <= 0 never hits, p >= 1 always does.
func (d *Dice) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() < p
}

func (d *Dice) intn(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Intn(n)
}

// Slots returns how many equally likely slots the difficulty's distribution
// is drawn from.
func Slots(diff wager.Difficulty) int {
	switch diff {
	case wager.DifficultyEasy:
		return 4
	case wager.DifficultyHard:
		return Faces + 1
	default:
		return Faces
	}
}

// BiasedFace maps a slot in [0, Slots(diff)) to a face.
func BiasedFace(diff wager.Difficulty, slot int) int {
	if diff == wager.DifficultyHard && slot >= Faces {
		return Faces
	}
	return slot + 1
}

// Valid reports whether v is a legal face.
func Valid(v int) bool {
	return v >= 1 && v <= Faces
}
