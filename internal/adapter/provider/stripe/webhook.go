package stripe

import (
	"encoding/json"
	"fmt"

	"crowdwave-ledger/internal/core/ports"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// WebhookVerifier validates Stripe webhook signatures and converts raw events
// into provider-neutral ProviderEvent values.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier creates a verifier using the endpoint's signing secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify checks the Stripe-Signature header against the payload and returns
// the normalized event. Events other than payment intent success/failure are
// returned with their raw type so callers can ignore them.
func (v *WebhookVerifier) Verify(payload []byte, sigHeader string) (*ports.ProviderEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, v.secret)
	if err != nil {
		return nil, fmt.Errorf("verifying webhook signature: %w", err)
	}

	switch string(event.Type) {
	case ports.EventPaymentSucceeded, ports.EventPaymentFailed:
		var pi stripego.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return nil, fmt.Errorf("decoding payment intent event: %w", err)
		}
		pe := &ports.ProviderEvent{
			Type:     string(event.Type),
			IntentID: pi.ID,
			Amount:   pi.Amount,
			Currency: string(pi.Currency),
			Metadata: pi.Metadata,
		}
		if pi.LastPaymentError != nil {
			pe.FailureMessage = pi.LastPaymentError.Msg
		}
		return pe, nil
	default:
		return &ports.ProviderEvent{Type: string(event.Type)}, nil
	}
}
