package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// DefaultWebhookTimeout bounds one delivery attempt.
const DefaultWebhookTimeout = 5 * time.Second

// Webhook posts messages as JSON to the chat front-end.
type Webhook struct {
	url     string
	timeout time.Duration
}

// NewWebhook creates a webhook notifier. timeout <= 0 uses
// DefaultWebhookTimeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return &Webhook{url: url, timeout: timeout}
}

type webhookPayload struct {
	PlayerID string  `json:"player_id"`
	Message  Message `json:"message"`
}

// Send implements Notifier. Any non-2xx status is an error.
func (w *Webhook) Send(ctx context.Context, playerID string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agent := fiber.Post(w.url).
		JSON(webhookPayload{PlayerID: playerID, Message: msg}).
		Timeout(w.timeout)

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", w.url, errs[0])
	}
	if code < 200 || code > 299 {
		return fmt.Errorf("webhook %s: status %d", w.url, code)
	}
	return nil
}
