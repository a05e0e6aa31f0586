package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/dicewager/internal/config"
	"github.com/roach88/dicewager/internal/dice"
	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/ledger"
	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/wager"
)

const simPlayer = "simulator"

// simSessionTimeout bounds one simulated session. Rolls are not paced, so
// only a stuck session can hit it.
const simSessionTimeout = 5 * time.Second

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	ConfigPath string
	Sessions   int
	Stake      string
	PowerUp    string
	Difficulty string
	Seed       int64
}

// SimulationReport summarizes a simulation run from the house's side.
type SimulationReport struct {
	Sessions   int             `json:"sessions"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	Ties       int             `json:"ties"`
	Jackpots   int             `json:"jackpots"`
	Aborted    int             `json:"aborted"`
	Escrowed   decimal.Decimal `json:"escrowed"`
	Commission decimal.Decimal `json:"commission"`
	HouseDelta decimal.Decimal `json:"house_delta"`
	// HouseEdge is HouseDelta over Escrowed.
	HouseEdge decimal.Decimal `json:"house_edge"`
}

// String renders the report for text output.
func (r SimulationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sessions: %d (%d aborted)\n", r.Sessions, r.Aborted)
	fmt.Fprintf(&b, "Player:   %d wins, %d losses, %d ties, %d jackpots\n", r.Wins, r.Losses, r.Ties, r.Jackpots)
	fmt.Fprintf(&b, "Escrowed: %s\n", r.Escrowed)
	fmt.Fprintf(&b, "Commission: %s\n", r.Commission)
	fmt.Fprintf(&b, "House delta: %s\n", r.HouseDelta)
	fmt.Fprintf(&b, "House edge: %s%%", r.HouseEdge.Mul(decimal.NewFromInt(100)).StringFixed(2))
	return b.String()
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play PvC sessions against an in-memory ledger and report the house edge",
		Long: `Run N PvC sessions back to back through the real engine, with an
in-memory ledger, no roll pacing, no cooldowns and no continuations. A
reroll power-up rerolls any face below 4.

Examples:
  dicewager simulate --sessions 10000 --stake 100
  dicewager simulate --sessions 5000 --stake 750 --difficulty hard --power-up boost --seed 42`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file for rules")
	cmd.Flags().IntVarP(&opts.Sessions, "sessions", "n", 1000, "number of sessions")
	cmd.Flags().StringVar(&opts.Stake, "stake", "100", "stake per session")
	cmd.Flags().StringVar(&opts.PowerUp, "power-up", string(wager.PowerUpNone), "power-up bought every session")
	cmd.Flags().StringVar(&opts.Difficulty, "difficulty", string(wager.DifficultyNormal), "bot difficulty")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "dice seed (0 seeds from crypto/rand)")

	return cmd
}

func runSimulate(opts *SimulateOptions, cmd *cobra.Command) error {
	if opts.Sessions <= 0 {
		return NewExitError(ExitCommandError, "--sessions must be positive")
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	stake, err := decimal.NewFromString(opts.Stake)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stake", err)
	}
	powerUp, err := wager.ParsePowerUp(opts.PowerUp)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid power-up", err)
	}
	difficulty, err := wager.ParseDifficulty(opts.Difficulty)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid difficulty", err)
	}

	roller, err := opts.roller()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to seed dice", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = opts.newLogger()
	}

	report, err := simulate(cmd.Context(), simulation{
		cfg:      cfg,
		roller:   roller,
		logger:   logger,
		sessions: opts.Sessions,
		request: engine.Request{
			PlayerID:   simPlayer,
			Mode:       wager.ModePvC,
			Stake:      stake,
			PowerUp:    powerUp,
			Difficulty: difficulty,
		},
	})
	if err != nil {
		if engine.CodeOf(err) != "" {
			return opts.formatter(cmd).WagerFailure(simPlayer, err)
		}
		return WrapExitError(ExitFailure, "simulation stopped", err)
	}
	return opts.formatter(cmd).Success(report)
}

func (o *SimulateOptions) roller() (dice.Roller, error) {
	if o.Seed != 0 {
		return dice.NewSeeded(o.Seed), nil
	}
	return dice.New()
}

type simulation struct {
	cfg      config.Config
	roller   dice.Roller
	logger   *slog.Logger
	sessions int
	request  engine.Request
}

// simArchive hands every finished session back to the simulation loop.
type simArchive struct {
	done chan wager.Snapshot
}

func (a *simArchive) ArchiveSession(_ context.Context, snap wager.Snapshot) error {
	a.done <- snap
	return nil
}

func (a *simArchive) LoadSession(_ context.Context, sessionID string) (wager.Snapshot, error) {
	return wager.Snapshot{}, fmt.Errorf("session %s not kept", sessionID)
}

func simulate(ctx context.Context, sim simulation) (SimulationReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	house := sim.cfg.House.Account

	l := ledger.NewMemory()
	l.Register(house, decimal.Zero, sim.cfg.House.Currency)
	l.AllowOverdraft(house)
	// Enough to escrow every session even if all are lost.
	bankroll := sim.cfg.Rules.Required(sim.request.Stake, sim.request.PowerUp).Mul(decimal.NewFromInt(int64(sim.sessions)))
	l.Register(simPlayer, bankroll, sim.cfg.House.Currency)

	timing := sim.cfg.Timing.Engine()
	timing.RollDelay = 0
	timing.ContinuationWindow = 0
	timing.Cooldown = engine.CooldownPolicy{}

	archive := &simArchive{done: make(chan wager.Snapshot, 1)}
	var e *engine.Engine
	rerollLow := notify.Func(func(_ context.Context, playerID string, msg notify.Message) error {
		if msg.Kind == notify.KindRerollOffered {
			go e.SubmitDecision(playerID, msg.Roll < 4)
		}
		return nil
	})
	e = engine.New(l,
		engine.WithRules(sim.cfg.Rules),
		engine.WithTiming(timing),
		engine.WithRoller(sim.roller),
		engine.WithArchive(archive),
		engine.WithNotifier(rerollLow),
		engine.WithHouseAccount(house),
		engine.WithLogger(sim.logger),
	)
	defer e.Close()

	report := SimulationReport{
		Escrowed:   decimal.Zero,
		Commission: decimal.Zero,
		HouseDelta: decimal.Zero,
		HouseEdge:  decimal.Zero,
	}
	for i := 0; i < sim.sessions; i++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := e.Enqueue(ctx, sim.request); err != nil {
			return report, fmt.Errorf("session %d: %w", i+1, err)
		}

		var snap wager.Snapshot
		select {
		case snap = <-archive.done:
		case <-time.After(simSessionTimeout):
			return report, errors.New("session did not finish")
		case <-ctx.Done():
			return report, ctx.Err()
		}
		report.add(snap)
	}

	if report.Escrowed.IsPositive() {
		report.HouseEdge = report.HouseDelta.Div(report.Escrowed).Round(4)
	}
	return report, nil
}

func (r *SimulationReport) add(snap wager.Snapshot) {
	r.Sessions++
	if snap.State == wager.StateAborted {
		r.Aborted++
		return
	}
	switch snap.Outcome {
	case wager.OutcomeWin:
		r.Wins++
	case wager.OutcomeLoss:
		r.Losses++
	case wager.OutcomeTie:
		r.Ties++
	case wager.OutcomeJackpot:
		r.Jackpots++
	}
	for _, p := range snap.Participants {
		if p.Human() {
			r.Escrowed = r.Escrowed.Add(p.Escrowed)
		}
	}
	r.Commission = r.Commission.Add(snap.Commission)
	r.HouseDelta = r.HouseDelta.Add(snap.HouseDelta)
}
