package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/dicewager/internal/config"
	"github.com/roach88/dicewager/internal/payout"
	"github.com/roach88/dicewager/internal/wager"
)

// Seat names used by the payout command.
const (
	payoutPlayer   = "player"
	payoutOpponent = "opponent"
)

// PayoutOptions holds flags for the payout command.
type PayoutOptions struct {
	*RootOptions
	ConfigPath      string
	Mode            string
	Stake           string
	PowerUp         string
	OpponentPowerUp string
	Difficulty      string
	Die             int
	OpponentDie     int
	PreviousDie     int
	Draw            bool
	Continuation    bool
	OriginalDie     int
}

// PayoutReport is the payout command's output.
type PayoutReport struct {
	Kind       string            `json:"kind"`
	Resolution payout.Resolution `json:"resolution"`
}

// String renders the report for text output.
func (r PayoutReport) String() string {
	res := r.Resolution
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", r.Kind, res.Outcome)
	if res.Winner != "" {
		fmt.Fprintf(&b, " (winner %s)", res.Winner)
	}
	fmt.Fprintf(&b, "\n  pot:         %s\n", res.Pot)
	fmt.Fprintf(&b, "  escrowed:    %s\n", res.Escrowed)
	fmt.Fprintf(&b, "  payout:      %s\n", res.Payout)
	fmt.Fprintf(&b, "  commission:  %s\n", res.Commission)
	fmt.Fprintf(&b, "  house delta: %s\n", res.HouseDelta)

	ids := make([]string, 0, len(res.Credits))
	for id := range res.Credits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Fprintf(&b, "  credit %s: %s\n", id, res.Credits[id])
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewPayoutCommand creates the payout command.
func NewPayoutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PayoutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Print the resolution of a round",
		Long: `Resolve one round with the configured payout rules and print who is
credited what. No ledger is touched.

Examples:
  dicewager payout --stake 100 --die 5 --opponent-die 3
  dicewager payout --mode pvp --stake 250 --die 6 --opponent-die 6
  dicewager payout --stake 100 --power-up shield --die 2 --opponent-die 4
  dicewager payout --continuation --stake 180 --die 6 --opponent-die 6 --original-die 6 --draw`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPayout(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file for rules")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(wager.ModePvC), "pvc or pvp")
	cmd.Flags().StringVar(&opts.Stake, "stake", "", "stake per participant, or amount at risk with --continuation (required)")
	cmd.Flags().StringVar(&opts.PowerUp, "power-up", string(wager.PowerUpNone), "player power-up")
	cmd.Flags().StringVar(&opts.OpponentPowerUp, "opponent-power-up", string(wager.PowerUpNone), "opponent power-up (pvp)")
	cmd.Flags().StringVar(&opts.Difficulty, "difficulty", string(wager.DifficultyNormal), "bot difficulty (pvc)")
	cmd.Flags().IntVar(&opts.Die, "die", 0, "player face (required)")
	cmd.Flags().IntVar(&opts.OpponentDie, "opponent-die", 0, "opponent face (required)")
	cmd.Flags().IntVar(&opts.PreviousDie, "previous-die", 0, "player's previous recorded roll")
	cmd.Flags().BoolVar(&opts.Draw, "draw", false, "jackpot chance draw hit")
	cmd.Flags().BoolVar(&opts.Continuation, "continuation", false, "resolve a double or nothing")
	cmd.Flags().IntVar(&opts.OriginalDie, "original-die", 0, "winning face of the original session (continuation)")
	_ = cmd.MarkFlagRequired("stake")
	_ = cmd.MarkFlagRequired("die")
	_ = cmd.MarkFlagRequired("opponent-die")

	return cmd
}

func runPayout(opts *PayoutOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	stake, err := decimal.NewFromString(opts.Stake)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid stake", err)
	}

	report, err := opts.resolve(cfg.Rules, stake)
	if err != nil {
		return out.Fail(ExitCommandError, CodeInvalidRound, err.Error(), err)
	}
	return out.Success(report)
}

func (o *PayoutOptions) resolve(rules payout.Rules, stake decimal.Decimal) (PayoutReport, error) {
	mode := wager.Mode(o.Mode)
	if o.Continuation {
		res, err := rules.ResolveContinuation(payout.ContinuationRound{
			Mode:        mode,
			PlayerID:    payoutPlayer,
			AtRisk:      stake,
			PlayerDie:   o.Die,
			OpponentDie: o.OpponentDie,
			OriginalDie: o.OriginalDie,
			JackpotDraw: o.Draw,
		})
		return PayoutReport{Kind: "continuation", Resolution: res}, err
	}

	opponent := payout.Side{
		PlayerID: payoutOpponent,
		Stake:    stake,
		PowerUp:  wager.PowerUp(o.OpponentPowerUp),
		Die:      o.OpponentDie,
	}
	if mode == wager.ModePvC {
		opponent = payout.Side{
			PlayerID: wager.BotPlayerID,
			Stake:    stake,
			PowerUp:  wager.PowerUpNone,
			Bot:      true,
			Die:      o.OpponentDie,
		}
	}
	res, err := rules.Resolve(payout.Round{
		Mode:       mode,
		Difficulty: wager.Difficulty(o.Difficulty),
		Player: payout.Side{
			PlayerID:    payoutPlayer,
			Stake:       stake,
			PowerUp:     wager.PowerUp(o.PowerUp),
			Die:         o.Die,
			PreviousDie: o.PreviousDie,
		},
		Opponent:    opponent,
		JackpotDraw: o.Draw,
	})
	return PayoutReport{Kind: string(mode), Resolution: res}, err
}
