package clock

import "sync/atomic"

// Sequence is a monotonic logical clock.
//
// Session events and snapshot versions are stamped from one Sequence per
// engine, so a larger number always means a later change regardless of
// wall-clock skew.
//
// Thread-safety: Sequence is safe for concurrent use (atomic operations).
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence starting at a specific number.
// Used when resuming after a restart so versions never go backwards.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next number and advances the sequence.
// Calls are linearizable - each call returns a unique, increasing value.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the current number without advancing.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
