package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/ledger"
	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/store"
	"github.com/roach88/dicewager/internal/testutil"
	"github.com/roach88/dicewager/internal/wager"
)

// stepTimeout bounds every blocking step.
var stepTimeout = 5 * time.Second

const currency = "chips"

// Harness drives one scenario.
type Harness struct {
	store    *store.Store
	engine   *engine.Engine
	clock    *testutil.ManualClock
	dice     *testutil.ScriptedDice
	notes    *testutil.RecordingNotifier
	sessions map[string]bool
	funded   decimal.Decimal
}

// Run executes a scenario on a fresh in-memory store and returns its
// result. The returned error covers setup failures only; failed
// expectations are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:    st,
		clock:    testutil.NewManualClock(time.Time{}),
		dice:     testutil.NewScriptedDice(scenario.Dice.Rolls...),
		notes:    testutil.NewRecordingNotifier(),
		sessions: make(map[string]bool),
		funded:   decimal.Zero,
	}
	h.dice.QueueBiased(scenario.Dice.Biased...).QueueChances(scenario.Dice.Chances...)

	if err := h.seed(ctx, engine.DefaultHouseAccount, scenario.House); err != nil {
		return nil, err
	}
	for _, a := range scenario.Accounts {
		if err := h.seed(ctx, a.ID, a.Balance); err != nil {
			return nil, err
		}
	}

	timing := engine.DefaultTiming()
	timing.RollDelay = 0
	timing.RetryInterval = time.Millisecond
	if scenario.DisableCooldowns {
		timing.Cooldown = engine.CooldownPolicy{}
	}
	if scenario.ContinuationWindow > 0 {
		timing.ContinuationWindow = scenario.ContinuationWindow
	}

	h.engine = engine.New(st,
		engine.WithTiming(timing),
		engine.WithClock(h.clock),
		engine.WithRoller(h.dice),
		engine.WithNotifier(h.notes),
		engine.WithArchive(st),
		engine.WithIDGenerator(testutil.NewSequentialIDs("")),
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)

	result := NewResult(scenario.Name)
	for i, step := range scenario.Flow {
		trace, code, err := h.execute(ctx, step)
		result.Trace.Steps = append(result.Trace.Steps, trace)
		if err != nil {
			result.AddError("flow[%d] %s: %v", i, step.Action, err)
			break
		}
		checkExpect(result, i, step, trace, code)
	}

	// Close drains running sessions so the snapshots below are final.
	h.engine.Close()

	if err := h.collect(ctx, scenario, result); err != nil {
		return nil, err
	}
	EvaluateAssertions(ctx, result, scenario.Assertions, h)
	h.checkInvariants(ctx, scenario, result)
	return result, nil
}

func (h *Harness) seed(ctx context.Context, id string, balance decimal.Decimal) error {
	if _, err := h.store.Register(ctx, id, balance, currency); err != nil {
		return fmt.Errorf("seed %s: %w", id, err)
	}
	h.funded = h.funded.Add(balance)
	return nil
}

// execute runs one step. It returns the trace line and the error code of a
// rejected or failed step. A non-nil error means the flow cannot go on.
func (h *Harness) execute(ctx context.Context, step Step) (StepTrace, engine.ErrorCode, error) {
	tr := StepTrace{Action: step.Action, Player: step.Player, Session: step.Session}
	e := h.engine

	switch step.Action {
	case StepEnqueue:
		res, err := e.Enqueue(ctx, step.request())
		return h.admission(tr, res, err)

	case StepConfirm:
		tr.Session = step.Proposal
		res, err := e.Confirm(ctx, step.Proposal)
		return h.admission(tr, res, err)

	case StepPropose:
		prop, err := e.Propose(ctx, step.request())
		if err != nil {
			return failed(tr, err)
		}
		tr.Result = "ok " + prop.ID
		return tr, "", nil

	case StepCancel:
		tr.Result = okOrNone(e.Cancel(step.Player))
		return tr, "", nil

	case StepDecide:
		if !waitUntil(func() bool { return e.DecisionPending(step.Player) }) {
			return tr, "", fmt.Errorf("no reroll decision pending for %s", step.Player)
		}
		tr.Result = okOrNone(e.SubmitDecision(step.Player, step.Reroll))
		return tr, "", nil

	case StepAwait:
		if _, ok := h.notes.WaitFor(step.Player, notify.Kind(step.Kind), stepTimeout); !ok {
			return tr, "", fmt.Errorf("%s was never sent %s", step.Player, step.Kind)
		}
		tr.Result = "ok"
		return tr, "", nil

	case StepWait:
		snap, ok := h.waitArchived(ctx, step.Session, wager.State(step.State))
		if !ok {
			return tr, "", fmt.Errorf("session %s not archived in state %q", step.Session, step.State)
		}
		tr.Result = "ok " + string(snap.State)
		return tr, "", nil

	case StepAdvance:
		h.clock.Advance(step.Duration)
		tr.Result = "ok"
		return tr, "", nil

	case StepOffer:
		id, err := e.OfferContinuation(ctx, step.Session)
		if err != nil {
			return failed(tr, err)
		}
		h.sessions[id] = true
		tr.Result = "ok " + id
		return tr, "", nil

	case StepResolve:
		snap, err := e.ResolveContinuation(ctx, step.Session)
		if err != nil {
			return failed(tr, err)
		}
		tr.Result = "ok " + string(snap.Outcome)
		return tr, "", nil

	case StepDecline:
		if err := e.DeclineContinuation(ctx, step.Session); err != nil {
			return failed(tr, err)
		}
		tr.Result = "ok"
		return tr, "", nil

	case StepDeposit:
		if err := h.store.Deposit(ctx, step.Player, step.Amount); err != nil {
			return failed(tr, err)
		}
		h.funded = h.funded.Add(step.Amount)
		tr.Result = "ok"
		return tr, "", nil
	}
	return tr, "", fmt.Errorf("unknown action %q", step.Action)
}

func (s Step) request() engine.Request {
	return engine.Request{
		PlayerID:   s.Player,
		Mode:       wager.Mode(s.Mode),
		Stake:      s.Stake,
		PowerUp:    wager.PowerUp(s.PowerUp),
		Difficulty: wager.Difficulty(s.Difficulty),
	}
}

func (h *Harness) admission(tr StepTrace, res engine.Result, err error) (StepTrace, engine.ErrorCode, error) {
	tr.Result = string(res.Admission)
	if res.SessionID != "" {
		h.sessions[res.SessionID] = true
		tr.Result += " " + res.SessionID
	}
	if err != nil {
		code := engine.CodeOf(err)
		tr.Result += " " + string(code)
		return tr, code, nil
	}
	return tr, "", nil
}

func failed(tr StepTrace, err error) (StepTrace, engine.ErrorCode, error) {
	code := engine.CodeOf(err)
	if code == "" {
		return tr, "", err
	}
	tr.Result = "error " + string(code)
	return tr, code, nil
}

func okOrNone(ok bool) string {
	if ok {
		return "ok"
	}
	return "none"
}

func checkExpect(r *Result, i int, step Step, tr StepTrace, code engine.ErrorCode) {
	x := step.Expect
	if x == nil {
		return
	}
	status, id := splitResult(tr.Result)
	if x.Status != "" && x.Status != status {
		r.AddError("flow[%d] %s: status = %q, want %q", i, step.Action, status, x.Status)
	}
	if x.Reason != "" && x.Reason != string(code) {
		r.AddError("flow[%d] %s: reason = %q, want %q", i, step.Action, code, x.Reason)
	}
	if x.Session != "" && x.Session != id {
		r.AddError("flow[%d] %s: session = %q, want %q", i, step.Action, id, x.Session)
	}
}

// splitResult separates "matched session-1" into status and ID. Error codes
// are upper case and never taken for an ID.
func splitResult(result string) (status, id string) {
	var rest string
	if n, _ := fmt.Sscan(result, &status, &rest); n == 2 && rest != "" && rest[0] >= 'a' && rest[0] <= 'z' {
		id = rest
	}
	return status, id
}

// waitArchived polls the archive until the session is stored in state, or
// in any state when state is empty.
func (h *Harness) waitArchived(ctx context.Context, id string, state wager.State) (wager.Snapshot, bool) {
	var snap wager.Snapshot
	ok := waitUntil(func() bool {
		s, err := h.store.LoadSession(ctx, id)
		if err != nil {
			return false
		}
		snap = s
		return state == "" || s.State == state
	})
	return snap, ok
}

func waitUntil(cond func() bool) bool {
	deadline := time.Now().Add(stepTimeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// collect fills the trace with every session seen and every final balance.
func (h *Harness) collect(ctx context.Context, scenario *Scenario, r *Result) error {
	// Sessions aborted during admission are only known to the engine.
	for _, id := range h.engine.ActiveSessions() {
		h.sessions[id] = true
	}
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		snap, err := h.engine.Status(ctx, id)
		if err != nil {
			return fmt.Errorf("collect %s: %w", id, err)
		}
		r.Trace.Sessions = append(r.Trace.Sessions, traceSession(snap))
	}

	for _, id := range h.accountIDs(scenario) {
		bal, err := h.store.Balance(ctx, id)
		if err != nil {
			return fmt.Errorf("collect balance %s: %w", id, err)
		}
		r.Trace.Balances[id] = bal.String()
	}
	return nil
}

func (h *Harness) accountIDs(scenario *Scenario) []string {
	ids := []string{engine.DefaultHouseAccount}
	for _, a := range scenario.Accounts {
		ids = append(ids, a.ID)
	}
	return ids
}

// checkInvariants verifies what must hold after any scenario: no chip was
// created or destroyed and every scripted die was rolled.
func (h *Harness) checkInvariants(ctx context.Context, scenario *Scenario, r *Result) {
	total := decimal.Zero
	for _, id := range h.accountIDs(scenario) {
		bal, err := h.store.Balance(ctx, id)
		if err != nil && !errors.Is(err, ledger.ErrNotRegistered) {
			r.AddError("invariant: balance %s: %v", id, err)
			return
		}
		total = total.Add(bal)
	}
	if !total.Equal(h.funded) {
		r.AddError("invariant: balances total %s, funded %s", total, h.funded)
	}

	if rolls, biased, chances := h.dice.Remaining(); rolls+biased+chances > 0 {
		r.AddError("invariant: unused dice (rolls=%d biased=%d chances=%d)", rolls, biased, chances)
	}
}
