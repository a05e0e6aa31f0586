package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dicewager/internal/config"
	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/httpapi"
	"github.com/roach88/dicewager/internal/jobs"
	"github.com/roach88/dicewager/internal/notify"
	"github.com/roach88/dicewager/internal/store"
	"github.com/roach88/dicewager/internal/telemetry"
)

// shutdownTimeout bounds the HTTP drain on exit.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Addr       string
	Database   string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the wager engine behind the HTTP API",
		Long: `Start the wager engine with its SQLite ledger, the maintenance
scheduler and the HTTP API used by the chat front-end.

Configuration comes from the optional --config YAML file, then DICEWAGER_*
environment variables. --addr and --db override both.

Example:
  dicewager serve --config ./dicewager.yaml
  dicewager serve --db /tmp/dicewager.db --addr :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	return cmd
}

func (o *ServeOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.Addr != "" {
		cfg.HTTP.Addr = o.Addr
	}
	if o.Database != "" {
		cfg.Database.Path = o.Database
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := opts.newLogger()
	slog.SetDefault(logger)

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	svc, err := startService(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}
	defer svc.close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.server.Listen(cfg.HTTP.Addr)
	}()

	logger.Info("listening", "addr", cfg.HTTP.Addr, "db", cfg.Database.Path, "house", cfg.House.Account)
	fmt.Fprintf(cmd.OutOrStdout(), "dicewager listening on %s\n", cfg.HTTP.Addr)

	select {
	case err := <-errCh:
		if err != nil {
			return WrapExitError(ExitFailure, "http server error", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := svc.server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped gracefully")
	return nil
}

// service is everything serve owns, closed in reverse order of start.
type service struct {
	store     *store.Store
	engine    *engine.Engine
	scheduler *jobs.Scheduler
	server    *httpapi.Server
	telemetry telemetry.Shutdown
	logger    *slog.Logger
}

func startService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*service, error) {
	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		_ = shutdownTelemetry(ctx)
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := seedHouse(ctx, st, cfg.House, logger); err != nil {
		st.Close()
		_ = shutdownTelemetry(ctx)
		return nil, err
	}

	eng := engine.New(st,
		engine.WithRules(cfg.Rules),
		engine.WithTiming(cfg.Timing.Engine()),
		engine.WithArchive(st),
		engine.WithNotifier(notifierFor(cfg.HTTP, logger)),
		engine.WithHouseAccount(cfg.House.Account),
		engine.WithLogger(logger),
	)

	sched := jobs.New(eng, logger)
	if err := sched.Register(cfg.Maintenance); err != nil {
		eng.Close()
		st.Close()
		_ = shutdownTelemetry(ctx)
		return nil, err
	}
	sched.Start()

	return &service{
		store:     st,
		engine:    eng,
		scheduler: sched,
		server:    httpapi.New(eng, st, logger),
		telemetry: shutdownTelemetry,
		logger:    logger,
	}, nil
}

func (s *service) close() {
	s.scheduler.Stop()
	s.engine.Close()
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.telemetry(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("telemetry shutdown", "error", err)
	}
}

// seedHouse registers the house account on first start. An existing
// account keeps its balance.
func seedHouse(ctx context.Context, st *store.Store, house config.House, logger *slog.Logger) error {
	if !house.SeedBalance.IsPositive() {
		return nil
	}
	created, err := st.Register(ctx, house.Account, house.SeedBalance, house.Currency)
	if err != nil {
		return fmt.Errorf("seed house account: %w", err)
	}
	if created {
		logger.Info("house account seeded", "account", house.Account, "balance", house.SeedBalance.String())
	}
	return nil
}

// notifierFor logs every message and, with a webhook URL, also posts it
// to the front-end.
func notifierFor(cfg config.HTTP, logger *slog.Logger) notify.Notifier {
	log := notify.NewLog(logger)
	if cfg.WebhookURL == "" {
		return log
	}
	return notify.Multi{log, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout)}
}
