package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/roach88/dicewager/internal/engine"
	"github.com/roach88/dicewager/internal/ledger"
)

type decisionRequest struct {
	PlayerID string `json:"player_id"`
	Reroll   bool   `json:"reroll"`
}

type accountRequest struct {
	PlayerID string          `json:"player_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func registerWagerRoutes(r fiber.Router, s *Server) {
	r.Post("/wagers", s.enqueue)
	r.Get("/queue/:player", s.waiting)
	r.Delete("/queue/:player", s.cancel)

	r.Post("/proposals", s.propose)
	r.Post("/proposals/:id/confirm", s.confirm)

	r.Post("/decisions", s.decide)

	r.Get("/sessions/:id", s.status)
	r.Post("/sessions/:id/continuation", s.offerContinuation)
	r.Post("/sessions/:id/decline", s.declineContinuation)
	r.Post("/continuations/:id/resolve", s.resolveContinuation)
}

func registerAccountRoutes(r fiber.Router, s *Server) {
	r.Post("/accounts", s.register)
	r.Get("/accounts/:id", s.player)
	r.Post("/accounts/:id/deposit", s.deposit)
	r.Get("/house", s.house)
}

func (s *Server) enqueue(c *fiber.Ctx) error {
	var req engine.Request
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := s.engine.Enqueue(c.UserContext(), req)
	if err != nil {
		return writeRejection(c, err)
	}
	return c.Status(admissionStatus(res)).JSON(res)
}

func admissionStatus(res engine.Result) int {
	if res.Admission == engine.AdmissionWaiting {
		return fiber.StatusAccepted
	}
	return fiber.StatusCreated
}

func (s *Server) waiting(c *fiber.Ctx) error {
	entry, ok := s.engine.Waiting(c.Params("player"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not queued"})
	}
	return c.JSON(fiber.Map{
		"player_id":   entry.PlayerID,
		"stake":       entry.Stake,
		"power_up":    entry.PowerUp,
		"enqueued_at": entry.EnqueuedAt,
	})
}

func (s *Server) cancel(c *fiber.Ctx) error {
	if !s.engine.Cancel(c.Params("player")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not queued"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) propose(c *fiber.Ctx) error {
	var req engine.Request
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	prop, err := s.engine.Propose(c.UserContext(), req)
	if err != nil {
		return writeRejection(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(prop)
}

func (s *Server) confirm(c *fiber.Ctx) error {
	res, err := s.engine.Confirm(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeRejection(c, err)
	}
	return c.Status(admissionStatus(res)).JSON(res)
}

func (s *Server) decide(c *fiber.Ctx) error {
	var req decisionRequest
	if err := c.BodyParser(&req); err != nil || req.PlayerID == "" {
		return badRequest(c, "player_id is required")
	}
	if !s.engine.SubmitDecision(req.PlayerID, req.Reroll) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "no decision pending"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// status returns a snapshot. With ?after=<version> it long-polls until the
// session moves past that version or ?wait (default 30s, max MaxWait)
// elapses, and then returns whatever it has.
func (s *Server) status(c *fiber.Ctx) error {
	id := c.Params("id")
	after := c.QueryInt("after", -1)
	if after < 0 {
		snap, err := s.engine.Status(c.UserContext(), id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(snap)
	}

	wait, err := time.ParseDuration(c.Query("wait", "30s"))
	if err != nil || wait <= 0 {
		return badRequest(c, "wait must be a positive duration")
	}
	if wait > MaxWait {
		wait = MaxWait
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), wait)
	defer cancel()

	snap, err := s.engine.Wait(ctx, id, int64(after))
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return writeError(c, err)
	}
	return c.JSON(snap)
}

func (s *Server) offerContinuation(c *fiber.Ctx) error {
	id, err := s.engine.OfferContinuation(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"continuation_id": id})
}

func (s *Server) resolveContinuation(c *fiber.Ctx) error {
	snap, err := s.engine.ResolveContinuation(c.UserContext(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(snap)
}

func (s *Server) declineContinuation(c *fiber.Ctx) error {
	if err := s.engine.DeclineContinuation(c.UserContext(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) register(c *fiber.Ctx) error {
	var req accountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	id := engine.NormalizePlayerID(req.PlayerID)
	if id == "" || id == s.engine.HouseAccount() {
		return badRequest(c, "player_id is required and may not name the house")
	}
	if req.Balance.IsNegative() {
		return badRequest(c, "balance must not be negative")
	}
	created, err := s.accounts.Register(c.UserContext(), id, req.Balance, req.Currency)
	if err != nil {
		return err
	}
	if !created {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already registered"})
	}
	s.logger.Info("account registered", "player", id, "balance", req.Balance.String())
	return s.writePlayer(c, id, fiber.StatusCreated)
}

func (s *Server) player(c *fiber.Ctx) error {
	return s.writePlayer(c, engine.NormalizePlayerID(c.Params("id")), fiber.StatusOK)
}

func (s *Server) writePlayer(c *fiber.Ctx, id string, code int) error {
	p, err := s.accounts.Player(c.UserContext(), id)
	if errors.Is(err, ledger.ErrNotRegistered) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not registered"})
	}
	if err != nil {
		return err
	}
	return c.Status(code).JSON(p)
}

func (s *Server) deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if !req.Amount.IsPositive() {
		return badRequest(c, "amount must be positive")
	}
	id := engine.NormalizePlayerID(c.Params("id"))
	err := s.accounts.Deposit(c.UserContext(), id, req.Amount)
	if errors.Is(err, ledger.ErrNotRegistered) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not registered"})
	}
	if err != nil {
		return err
	}
	return s.writePlayer(c, id, fiber.StatusOK)
}

func (s *Server) house(c *fiber.Ctx) error {
	sum, err := s.accounts.Summarize(c.UserContext())
	if err != nil {
		return err
	}
	house, err := s.accounts.Player(c.UserContext(), s.engine.HouseAccount())
	if err != nil && !errors.Is(err, ledger.ErrNotRegistered) {
		return err
	}
	return c.JSON(fiber.Map{
		"account":     s.engine.HouseAccount(),
		"balance":     house.Balance,
		"sessions":    sum.Sessions,
		"commission":  sum.Commission,
		"house_delta": sum.HouseDelta,
	})
}
