package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/dicewager/internal/wager"
)

// StepTrace records what one flow step did.
type StepTrace struct {
	Action  string `json:"action"`
	Player  string `json:"player,omitempty"`
	Session string `json:"session,omitempty"`
	Result  string `json:"result"`
}

// SessionTrace is the final view of one session.
type SessionTrace struct {
	ID         string        `json:"id"`
	Parent     string        `json:"parent,omitempty"`
	State      wager.State   `json:"state"`
	Outcome    wager.Outcome `json:"outcome,omitempty"`
	Winner     string        `json:"winner,omitempty"`
	HouseDelta string        `json:"house_delta"`
	Events     []string      `json:"events"`
}

// Trace is what a scenario run produced. It is the golden file content.
type Trace struct {
	Scenario string            `json:"scenario"`
	Steps    []StepTrace       `json:"steps"`
	Sessions []SessionTrace    `json:"sessions"`
	Balances map[string]string `json:"balances"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace Trace `json:"trace"`

	// Errors lists failed expectations, empty if Pass.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult(name string) *Result {
	return &Result{
		Pass: true,
		Trace: Trace{
			Scenario: name,
			Steps:    []StepTrace{},
			Sessions: []SessionTrace{},
			Balances: map[string]string{},
		},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Session returns the traced session with the given ID.
func (r *Result) Session(id string) (SessionTrace, bool) {
	for _, s := range r.Trace.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return SessionTrace{}, false
}

// formatEvent renders an event as "kind [player] [value] [detail]".
func formatEvent(ev wager.Event) string {
	parts := []string{ev.Kind}
	if ev.PlayerID != "" {
		parts = append(parts, ev.PlayerID)
	}
	if ev.Value != 0 {
		parts = append(parts, strconv.Itoa(ev.Value))
	}
	if ev.Detail != "" {
		parts = append(parts, ev.Detail)
	}
	return strings.Join(parts, " ")
}

func traceSession(snap wager.Snapshot) SessionTrace {
	st := SessionTrace{
		ID:         snap.SessionID,
		Parent:     snap.ParentID,
		State:      snap.State,
		Outcome:    snap.Outcome,
		Winner:     snap.Winner,
		HouseDelta: snap.HouseDelta.String(),
		Events:     make([]string, 0, len(snap.Events)),
	}
	for _, ev := range snap.Events {
		st.Events = append(st.Events, formatEvent(ev))
	}
	return st
}
