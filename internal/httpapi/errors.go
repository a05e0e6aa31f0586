package httpapi

import (
	"errors"
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/roach88/dicewager/internal/engine"
)

type errorBody struct {
	Status      engine.Admission `json:"status,omitempty"`
	Code        engine.ErrorCode `json:"code"`
	Message     string           `json:"message"`
	RemainingMS int64            `json:"remaining_ms,omitempty"`
}

func statusFor(code engine.ErrorCode) int {
	switch code {
	case engine.ErrCodeInvalidRequest:
		return fiber.StatusBadRequest
	case engine.ErrCodeNotRegistered, engine.ErrCodeSessionNotFound:
		return fiber.StatusNotFound
	case engine.ErrCodeInsufficientFunds:
		return fiber.StatusPaymentRequired
	case engine.ErrCodeAlreadyInSession, engine.ErrCodeInvalidTransition:
		return fiber.StatusConflict
	case engine.ErrCodeCooldownActive:
		return fiber.StatusTooManyRequests
	case engine.ErrCodeProposalExpired:
		return fiber.StatusGone
	case engine.ErrCodeMatchTimeout:
		return fiber.StatusRequestTimeout
	case engine.ErrCodeHouseAccountMissing, engine.ErrCodeHouseUnderfunded,
		engine.ErrCodeLedgerUnavailable, engine.ErrCodeClosed:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// writeError renders a *engine.WagerError with its code. Other errors go to
// the fiber error handler.
func writeError(c *fiber.Ctx, err error) error {
	return write(c, err, "")
}

// writeRejection is writeError for admission paths.
func writeRejection(c *fiber.Ctx, err error) error {
	return write(c, err, engine.AdmissionRejected)
}

func write(c *fiber.Ctx, err error, status engine.Admission) error {
	var we *engine.WagerError
	if !errors.As(err, &we) {
		return err
	}
	body := errorBody{Status: status, Code: we.Code, Message: we.Message}
	if we.Code == engine.ErrCodeCooldownActive {
		body.RemainingMS = we.Remaining.Milliseconds()
		c.Set(fiber.HeaderRetryAfter, retryAfter(we))
	}
	return c.Status(statusFor(we.Code)).JSON(body)
}

// retryAfter rounds the cooldown up to whole seconds.
func retryAfter(we *engine.WagerError) string {
	secs := int64(math.Ceil(we.Remaining.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorBody{
		Code:    engine.ErrCodeInvalidRequest,
		Message: msg,
	})
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
