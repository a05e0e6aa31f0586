package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/roach88/dicewager/internal/notify"
)

// Delivery is one recorded notification.
type Delivery struct {
	PlayerID string
	Message  notify.Message
}

// RecordingNotifier is a notify.Notifier that keeps every message.
type RecordingNotifier struct {
	mu         sync.Mutex
	deliveries []Delivery
	changed    chan struct{}
}

var _ notify.Notifier = (*RecordingNotifier)(nil)

// NewRecordingNotifier creates an empty recorder.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{changed: make(chan struct{})}
}

// Send implements notify.Notifier.
func (r *RecordingNotifier) Send(_ context.Context, playerID string, msg notify.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{PlayerID: playerID, Message: msg})
	close(r.changed)
	r.changed = make(chan struct{})
	return nil
}

// Deliveries returns a copy of everything sent so far.
func (r *RecordingNotifier) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Delivery, len(r.deliveries))
	copy(out, r.deliveries)
	return out
}

// Kinds returns the kinds sent to one player, in order.
func (r *RecordingNotifier) Kinds(playerID string) []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []notify.Kind
	for _, d := range r.deliveries {
		if d.PlayerID == playerID {
			kinds = append(kinds, d.Message.Kind)
		}
	}
	return kinds
}

// WaitFor blocks until playerID has received a message of the given kind,
// or timeout elapses. Returns the first such message.
func (r *RecordingNotifier) WaitFor(playerID string, kind notify.Kind, timeout time.Duration) (notify.Message, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		for _, d := range r.deliveries {
			if d.PlayerID == playerID && d.Message.Kind == kind {
				r.mu.Unlock()
				return d.Message, true
			}
		}
		changed := r.changed
		r.mu.Unlock()

		select {
		case <-changed:
		case <-deadline.C:
			return notify.Message{}, false
		}
	}
}
