package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/dicewager/internal/config"
	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/store"
	"github.com/roach88/dicewager/internal/wager"
)

// AccountOptions holds flags shared by the account subcommands.
type AccountOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
}

// AccountReport is a player account with, optionally, its movement log.
type AccountReport struct {
	Player    wager.Player     `json:"player"`
	Movements []store.Movement `json:"movements,omitempty"`
}

// String renders the report for text output.
func (r AccountReport) String() string {
	p := r.Player
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s %s\n", p.ID, p.Balance, p.Currency)
	fmt.Fprintf(&b, "  record: %d wins, %d losses, %d ties", p.Stats.Wins, p.Stats.Losses, p.Stats.Ties)
	if p.Stats.WinStreak > 0 {
		fmt.Fprintf(&b, ", %d win streak", p.Stats.WinStreak)
	}
	if p.Stats.LossStreak > 0 {
		fmt.Fprintf(&b, ", %d loss streak", p.Stats.LossStreak)
	}
	for _, m := range r.Movements {
		fmt.Fprintf(&b, "\n  %s %-20s %s", m.Delta.StringFixed(2), m.Reason, m.SessionID)
	}
	return b.String()
}

// NewAccountCommand creates the account command and its subcommands.
func NewAccountCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AccountOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage player accounts in the local ledger",
		Long: `Register, top up and inspect player accounts directly in the SQLite
ledger. Meant for local play; the server must not be mid-session for the
same players.

Examples:
  dicewager account register alice --balance 1000
  dicewager account deposit alice 250
  dicewager account show alice --history`,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	cmd.AddCommand(newAccountRegisterCommand(opts))
	cmd.AddCommand(newAccountDepositCommand(opts))
	cmd.AddCommand(newAccountShowCommand(opts))

	return cmd
}

func newAccountRegisterCommand(opts *AccountOptions) *cobra.Command {
	var balance, currency string
	cmd := &cobra.Command{
		Use:           "register <player-id>",
		Short:         "Create an account",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(balance, true)
			if err != nil {
				return err
			}
			return opts.withStore(cmd, func(ctx context.Context, cfg config.Config, st *store.Store) error {
				id := engine.NormalizePlayerID(args[0])
				if id == "" {
					return NewExitError(ExitCommandError, "player id is required")
				}
				if id == cfg.House.Account {
					return NewExitError(ExitCommandError, "cannot register the house account")
				}
				cur := currency
				if cur == "" {
					cur = cfg.House.Currency
				}
				created, err := st.Register(ctx, id, amount, cur)
				if err != nil {
					return WrapExitError(ExitCommandError, "register failed", err)
				}
				if !created {
					return opts.formatter(cmd).Fail(ExitFailure, CodeAlreadyRegistered, id+" is already registered", nil)
				}
				return opts.show(ctx, cmd, st, id, false)
			})
		},
	}
	cmd.Flags().StringVar(&balance, "balance", "0", "opening balance")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (defaults to the house currency)")
	return cmd
}

func newAccountDepositCommand(opts *AccountOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "deposit <player-id> <amount>",
		Short:         "Top up an account",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[1], false)
			if err != nil {
				return err
			}
			return opts.withStore(cmd, func(ctx context.Context, _ config.Config, st *store.Store) error {
				id := engine.NormalizePlayerID(args[0])
				if err := st.Deposit(ctx, id, amount); err != nil {
					return opts.formatter(cmd).WagerFailure(id, err)
				}
				return opts.show(ctx, cmd, st, id, false)
			})
		},
	}
}

func newAccountShowCommand(opts *AccountOptions) *cobra.Command {
	var history bool
	cmd := &cobra.Command{
		Use:           "show <player-id>",
		Short:         "Print balance and record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(cmd, func(ctx context.Context, _ config.Config, st *store.Store) error {
				return opts.show(ctx, cmd, st, engine.NormalizePlayerID(args[0]), history)
			})
		},
	}
	cmd.Flags().BoolVar(&history, "history", false, "include the movement log")
	return cmd
}

func (o *AccountOptions) withStore(cmd *cobra.Command, fn func(context.Context, config.Config, *store.Store) error) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	o.formatter(cmd).VerboseLog("using database %s", cfg.Database.Path)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, cfg, st)
}

func (o *AccountOptions) show(ctx context.Context, cmd *cobra.Command, st *store.Store, id string, history bool) error {
	p, err := st.Player(ctx, id)
	if err != nil {
		return o.formatter(cmd).WagerFailure(id, err)
	}
	report := AccountReport{Player: p}
	if history {
		if report.Movements, err = st.Movements(ctx, id); err != nil {
			return WrapExitError(ExitCommandError, "read movements", err)
		}
	}
	return o.formatter(cmd).Success(report)
}

func parseAmount(s string, allowZero bool) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, WrapExitError(ExitCommandError, "invalid amount", err)
	}
	if amount.IsNegative() || (!allowZero && amount.IsZero()) {
		return decimal.Zero, NewExitError(ExitCommandError, fmt.Sprintf("amount must be positive, got %s", amount))
	}
	return amount, nil
}
