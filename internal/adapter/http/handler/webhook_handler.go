package handler

import (
	"io"
	"net/http"

	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/pkg/apperror"
	"crowdwave-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WebhookVerifier checks a provider webhook signature and normalizes the
// event payload.
type WebhookVerifier interface {
	Verify(payload []byte, sigHeader string) (*ports.ProviderEvent, error)
}

// WebhookHandler handles unauthenticated provider callbacks.
type WebhookHandler struct {
	verifier   WebhookVerifier
	paymentSvc ports.PaymentService
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(verifier WebhookVerifier, paymentSvc ports.PaymentService, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, paymentSvc: paymentSvc, log: log}
}

// HandleStripe handles POST /webhooks/stripe. Signature failures are
// rejected; already-applied events replay the committed outcome and still
// return 200 so the provider stops re-delivering.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	event, err := h.verifier.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		h.log.Warn().Err(err).Msg("webhook signature verification failed")
		response.Error(c, apperror.ErrWebhookSignature(err))
		return
	}

	if err := h.paymentSvc.HandleProviderEvent(c.Request.Context(), *event); err != nil {
		h.log.Error().Err(err).Str("event_type", event.Type).Msg("webhook event handling failed")
		response.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
