package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Scenario is one scripted run.
type Scenario struct {
	// Name identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario shows.
	Description string `yaml:"description"`

	// House is the house account's seed balance.
	House decimal.Decimal `yaml:"house"`

	Accounts []Account `yaml:"accounts"`

	// Dice scripts every roll the engine will make.
	Dice DiceScript `yaml:"dice"`

	// DisableCooldowns turns the per-player cooldown off, for scenarios
	// that play several sessions back to back.
	DisableCooldowns bool `yaml:"disable_cooldowns,omitempty"`

	// ContinuationWindow overrides the engine default when set.
	ContinuationWindow time.Duration `yaml:"continuation_window,omitempty"`

	Flow []Step `yaml:"flow"`

	Assertions []Assertion `yaml:"assertions"`
}

// Account seeds a player.
type Account struct {
	ID      string          `yaml:"id"`
	Balance decimal.Decimal `yaml:"balance"`
}

// DiceScript lists faces in the order they will be rolled.
type DiceScript struct {
	Rolls   []int  `yaml:"rolls,omitempty"`
	Biased  []int  `yaml:"biased,omitempty"`
	Chances []bool `yaml:"chances,omitempty"`
}

// Step is one flow action. Which fields apply depends on Action.
type Step struct {
	Action     string          `yaml:"action"`
	Player     string          `yaml:"player,omitempty"`
	Mode       string          `yaml:"mode,omitempty"`
	Stake      decimal.Decimal `yaml:"stake,omitempty"`
	PowerUp    string          `yaml:"power_up,omitempty"`
	Difficulty string          `yaml:"difficulty,omitempty"`
	Session    string          `yaml:"session,omitempty"`
	Proposal   string          `yaml:"proposal,omitempty"`
	Reroll     bool            `yaml:"reroll,omitempty"`
	Kind       string          `yaml:"kind,omitempty"`
	State      string          `yaml:"state,omitempty"`
	Duration   time.Duration   `yaml:"duration,omitempty"`
	Amount     decimal.Decimal `yaml:"amount,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks a step's result. Only the fields set are compared.
type Expect struct {
	// Status is matched, waiting or rejected for admission steps and ok,
	// none or error for the rest.
	Status string `yaml:"status,omitempty"`

	// Reason is the error code of a rejected or failed step.
	Reason string `yaml:"reason,omitempty"`

	// Session is the session, continuation or proposal ID returned.
	Session string `yaml:"session,omitempty"`
}

// Assertion checks final state.
type Assertion struct {
	Type    string   `yaml:"type"`
	Player  string   `yaml:"player,omitempty"`
	Session string   `yaml:"session,omitempty"`
	Kind    string   `yaml:"kind,omitempty"`
	Kinds   []string `yaml:"kinds,omitempty"`
	Count   int      `yaml:"count,omitempty"`
	Expect  string   `yaml:"expect,omitempty"`

	// Wins, Losses and Ties are compared by stats assertions.
	Wins   int `yaml:"wins,omitempty"`
	Losses int `yaml:"losses,omitempty"`
	Ties   int `yaml:"ties,omitempty"`
}

// Step actions.
const (
	StepEnqueue = "enqueue"
	StepPropose = "propose"
	StepConfirm = "confirm"
	StepCancel  = "cancel"
	StepDecide  = "decide"
	StepAwait   = "await"
	StepWait    = "wait"
	StepAdvance = "advance"
	StepOffer   = "offer"
	StepResolve = "resolve"
	StepDecline = "decline"
	StepDeposit = "deposit"
)

// Assertion types.
const (
	AssertBalance      = "balance"
	AssertSessionState = "session_state"
	AssertOutcome      = "outcome"
	AssertEventOrder   = "event_order"
	AssertEventCount   = "event_count"
	AssertNotified     = "notified"
	AssertStats        = "stats"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so that a typo never silently disables a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		sc, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.House.IsNegative() {
		return fmt.Errorf("house balance must not be negative")
	}

	seen := make(map[string]bool)
	for i, a := range s.Accounts {
		if a.ID == "" {
			return fmt.Errorf("accounts[%d]: id is required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("accounts[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.Balance.IsNegative() {
			return fmt.Errorf("accounts[%d]: balance must not be negative", i)
		}
	}

	for _, face := range append(append([]int(nil), s.Dice.Rolls...), s.Dice.Biased...) {
		if face < 1 || face > 6 {
			return fmt.Errorf("dice: face %d out of range", face)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	need := func(field, value string) error {
		if value == "" {
			return fmt.Errorf("flow[%d]: %s is required for %s", i, field, step.Action)
		}
		return nil
	}

	switch step.Action {
	case StepEnqueue, StepPropose, StepCancel, StepDecide:
		return need("player", step.Player)
	case StepConfirm:
		return need("proposal", step.Proposal)
	case StepAwait:
		if err := need("player", step.Player); err != nil {
			return err
		}
		return need("kind", step.Kind)
	case StepWait, StepOffer, StepResolve, StepDecline:
		return need("session", step.Session)
	case StepAdvance:
		if step.Duration <= 0 {
			return fmt.Errorf("flow[%d]: duration must be positive", i)
		}
	case StepDeposit:
		if err := need("player", step.Player); err != nil {
			return err
		}
		if !step.Amount.IsPositive() {
			return fmt.Errorf("flow[%d]: amount must be positive", i)
		}
	case "":
		return fmt.Errorf("flow[%d]: action is required", i)
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", i, step.Action)
	}
	return nil
}

func validateAssertion(i int, a Assertion) error {
	switch a.Type {
	case AssertBalance:
		if a.Player == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: player and expect are required for balance", i)
		}
		if _, err := decimal.NewFromString(a.Expect); err != nil {
			return fmt.Errorf("assertions[%d]: expect %q is not a number", i, a.Expect)
		}
	case AssertSessionState, AssertOutcome:
		if a.Session == "" || a.Expect == "" {
			return fmt.Errorf("assertions[%d]: session and expect are required for %s", i, a.Type)
		}
	case AssertEventOrder:
		if a.Session == "" || len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: session and kinds are required for event_order", i)
		}
	case AssertEventCount:
		if a.Session == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: session and kind are required for event_count", i)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", i)
		}
	case AssertNotified:
		if a.Player == "" || a.Kind == "" {
			return fmt.Errorf("assertions[%d]: player and kind are required for notified", i)
		}
	case AssertStats:
		if a.Player == "" {
			return fmt.Errorf("assertions[%d]: player is required for stats", i)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
