// Package httpapi exposes the engine to the chat front-end over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/store"
	"github.com/roach88/dicewager/internal/wager"
)

// MaxWait caps a long-poll on a session.
const MaxWait = 60 * time.Second

// Accounts is the optional account surface for local play. Implemented by
// store.Store.
type Accounts interface {
	Register(ctx context.Context, playerID string, balance decimal.Decimal, currency string) (bool, error)
	Deposit(ctx context.Context, playerID string, amount decimal.Decimal) error
	Player(ctx context.Context, playerID string) (wager.Player, error)
	Summarize(ctx context.Context) (store.HouseSummary, error)
	Ping(ctx context.Context) error
}

// Server is the HTTP transport.
type Server struct {
	app      *fiber.App
	engine   *engine.Engine
	accounts Accounts
	logger   *slog.Logger
}

// New builds the routes. accounts may be nil, in which case the account
// routes are not mounted.
func New(e *engine.Engine, accounts Accounts, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:               "dicewager",
			DisableStartupMessage: true,
			ErrorHandler:          errorHandler,
		}),
		engine:   e,
		accounts: accounts,
		logger:   logger,
	}

	s.app.Get("/health", s.health)

	api := s.app.Group("/api")
	registerWagerRoutes(api, s)
	if accounts != nil {
		registerAccountRoutes(api, s)
	}
	return s
}

// health reports ok, or 503 when the ledger cannot be reached.
func (s *Server) health(c *fiber.Ctx) error {
	if s.accounts != nil {
		if err := s.accounts.Ping(c.UserContext()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("http listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
