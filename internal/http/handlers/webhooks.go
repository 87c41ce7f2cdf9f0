package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"

	"github.com/Chicago-Nigeria/chicago-nigeria-backend/internal/modules/webhooks"
)

// EventVerifier checks the webhook signature and parses the payload.
type EventVerifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

type WebhookHandler struct {
	Logger   *slog.Logger
	Verifier EventVerifier
	Webhooks *webhooks.Service
}

func NewWebhookHandler(logger *slog.Logger, v EventVerifier, svc *webhooks.Service) *WebhookHandler {
	return &WebhookHandler{Logger: logger, Verifier: v, Webhooks: svc}
}

// POST /webhooks/stripe
// Body is the raw payload; the signature covers the exact bytes, so this
// handler never binds JSON. Everything past signature verification is acked
// with 200 — a failed handler is recorded and retried on redelivery, not
// bounced back at the provider.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	event, err := h.Verifier.VerifyEvent(body, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.Logger.Warn("webhook signature verification failed", "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid signature"})
		return
	}

	if err := h.Webhooks.Handle(c.Request.Context(), event); err != nil {
		h.Logger.Error("webhook apply failed",
			"event_id", event.ID, "type", event.Type, "err", err)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
