package stripe

import (
	"context"
	"net/http"

	"crowdwave-ledger/config"
	"crowdwave-ledger/internal/core/ports"

	"github.com/rs/zerolog"
	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// Provider implements ports.PaymentProvider against the Stripe API.
type Provider struct {
	api *client.API
	log zerolog.Logger
}

// NewProvider creates a Stripe-backed payment provider.
func NewProvider(cfg config.StripeConfig, log zerolog.Logger) *Provider {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	api := &client.API{}
	api.Init(cfg.SecretKey, &stripego.Backends{
		API: stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
			HTTPClient: httpClient,
		}),
	})
	return &Provider{api: api, log: log}
}

// CreateIntent creates a payment intent for the given amount. Metadata is
// attached verbatim; the bookingId entry is what ties the intent back to the
// escrow hold when the webhook fires.
func (p *Provider) CreateIntent(ctx context.Context, params ports.CreateIntentParams) (*ports.PaymentIntent, error) {
	piParams := &stripego.PaymentIntentParams{
		Amount:   stripego.Int64(params.Amount),
		Currency: stripego.String(params.Currency),
	}
	piParams.Context = ctx
	for k, v := range params.Metadata {
		piParams.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(piParams)
	if err != nil {
		return nil, err
	}

	p.log.Debug().
		Str("intent_id", pi.ID).
		Int64("amount", pi.Amount).
		Msg("payment intent created")

	return toPaymentIntent(pi), nil
}

// GetIntent fetches the current state of a payment intent.
func (p *Provider) GetIntent(ctx context.Context, intentID string) (*ports.PaymentIntent, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, err
	}
	return toPaymentIntent(pi), nil
}

// CreateRefund issues a refund against a payment intent. A zero amount
// refunds the full charge.
func (p *Provider) CreateRefund(ctx context.Context, params ports.RefundParams) (*ports.ProviderRefund, error) {
	refundParams := &stripego.RefundParams{
		PaymentIntent: stripego.String(params.IntentID),
	}
	refundParams.Context = ctx
	if params.IdempotencyKey != "" {
		refundParams.SetIdempotencyKey(params.IdempotencyKey)
	}
	if params.Amount > 0 {
		refundParams.Amount = stripego.Int64(params.Amount)
	}
	if params.Reason != "" {
		refundParams.AddMetadata("reason", params.Reason)
	}
	for k, v := range params.Metadata {
		refundParams.AddMetadata(k, v)
	}

	ref, err := p.api.Refunds.New(refundParams)
	if err != nil {
		return nil, err
	}

	p.log.Debug().
		Str("refund_id", ref.ID).
		Str("intent_id", params.IntentID).
		Msg("refund created")

	return &ports.ProviderRefund{ID: ref.ID, Status: string(ref.Status)}, nil
}

func toPaymentIntent(pi *stripego.PaymentIntent) *ports.PaymentIntent {
	return &ports.PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Metadata:     pi.Metadata,
	}
}
