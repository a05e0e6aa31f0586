package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/notify"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Events   []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nSession events:\n")
		for i, ev := range e.Events {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, ev)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against the collected trace and
// the harness's store and notifier, adding failures to r.
func EvaluateAssertions(ctx context.Context, r *Result, assertions []Assertion, h *Harness) {
	for i, a := range assertions {
		if err := evaluate(ctx, r, a, h); err != nil {
			r.AddError("assertions[%d]: %v", i, err)
		}
	}
}

func evaluate(ctx context.Context, r *Result, a Assertion, h *Harness) error {
	switch a.Type {
	case AssertBalance:
		return assertBalance(r, a)
	case AssertSessionState:
		s, err := session(r, a)
		if err != nil {
			return err
		}
		return compare(a.Type, a.Expect, string(s.State), s.Events)
	case AssertOutcome:
		s, err := session(r, a)
		if err != nil {
			return err
		}
		return compare(a.Type, a.Expect, string(s.Outcome), s.Events)
	case AssertEventOrder:
		s, err := session(r, a)
		if err != nil {
			return err
		}
		return assertEventOrder(s, a)
	case AssertEventCount:
		s, err := session(r, a)
		if err != nil {
			return err
		}
		return assertEventCount(s, a)
	case AssertNotified:
		return assertNotified(h, a)
	case AssertStats:
		return assertStats(ctx, h, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func session(r *Result, a Assertion) (SessionTrace, error) {
	s, ok := r.Session(a.Session)
	if !ok {
		return SessionTrace{}, &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("session %s", a.Session),
			Actual:   "session never created",
		}
	}
	return s, nil
}

func compare(typ, want, got string, events []string) error {
	if want == got {
		return nil
	}
	return &AssertionError{Type: typ, Expected: want, Actual: got, Events: events}
}

func assertBalance(r *Result, a Assertion) error {
	got, ok := r.Trace.Balances[a.Player]
	if !ok {
		return &AssertionError{Type: a.Type, Expected: a.Player + " = " + a.Expect, Actual: "unknown account"}
	}
	want := decimal.RequireFromString(a.Expect)
	if !decimal.RequireFromString(got).Equal(want) {
		return &AssertionError{Type: a.Type, Expected: a.Player + " = " + a.Expect, Actual: got}
	}
	return nil
}

func eventKind(ev string) string {
	kind, _, _ := strings.Cut(ev, " ")
	return kind
}

// assertEventOrder checks that the kinds appear in order. Other events may
// come in between, and a kind listed twice must occur twice.
func assertEventOrder(s SessionTrace, a Assertion) error {
	next := 0
	for _, ev := range s.Events {
		if next < len(a.Kinds) && eventKind(ev) == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("events in order: %v", a.Kinds),
		Actual:   fmt.Sprintf("missing %s after position %d", a.Kinds[next], next),
		Events:   s.Events,
	}
}

func assertEventCount(s SessionTrace, a Assertion) error {
	count := 0
	for _, ev := range s.Events {
		if eventKind(ev) == a.Kind {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Events:   s.Events,
		}
	}
	return nil
}

func assertNotified(h *Harness, a Assertion) error {
	kinds := h.notes.Kinds(a.Player)
	for _, k := range kinds {
		if k == notify.Kind(a.Kind) {
			return nil
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%s sent %s", a.Player, a.Kind),
		Actual:   fmt.Sprintf("sent %v", kinds),
	}
}

func assertStats(ctx context.Context, h *Harness, a Assertion) error {
	p, err := h.store.Player(ctx, a.Player)
	if err != nil {
		return err
	}
	got := p.Stats
	if got.Wins != a.Wins || got.Losses != a.Losses || got.Ties != a.Ties {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("wins=%d losses=%d ties=%d", a.Wins, a.Losses, a.Ties),
			Actual:   fmt.Sprintf("wins=%d losses=%d ties=%d", got.Wins, got.Losses, got.Ties),
		}
	}
	return nil
}
