package service

import (
	"context"
	"fmt"
	"time"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// providerRetryDelay is the pause before the single provider retry.
const providerRetryDelay = 300 * time.Millisecond

// PaymentServiceImpl implements ports.PaymentService: the provider-facing
// flow that feeds the escrow coordinator.
type PaymentServiceImpl struct {
	provider  ports.PaymentProvider
	escrowSvc ports.EscrowService
	notifier  ports.NotificationService
	metrics   *LedgerMetrics
	log       zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl. notifier and metrics
// may be nil.
func NewPaymentService(
	provider ports.PaymentProvider,
	escrowSvc ports.EscrowService,
	notifier ports.NotificationService,
	metrics *LedgerMetrics,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		provider:  provider,
		escrowSvc: escrowSvc,
		notifier:  notifier,
		metrics:   metrics,
		log:       log,
	}
}

// CreateIntent creates a provider payment intent carrying the booking
// identifiers in its metadata so webhook events can be tied back to the hold.
func (s *PaymentServiceImpl) CreateIntent(ctx context.Context, req ports.CreateIntentRequest) (*ports.PaymentIntent, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.BookingID == "" || req.SenderID == "" || req.TravelerID == "" {
		return nil, apperror.Validation("bookingId, senderId and travelerId are required")
	}
	if req.Currency == "" {
		return nil, apperror.Validation("currency is required")
	}

	metadata := map[string]string{
		"bookingId":  req.BookingID,
		"senderId":   req.SenderID,
		"travelerId": req.TravelerID,
	}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	intent, err := s.callProvider(ctx, func(ctx context.Context) (*ports.PaymentIntent, error) {
		return s.provider.CreateIntent(ctx, ports.CreateIntentParams{
			Amount:   req.Amount,
			Currency: req.Currency,
			Metadata: metadata,
		})
	})
	if err != nil {
		return nil, apperror.ErrPaymentProvider(err)
	}

	s.log.Info().
		Str("booking_id", req.BookingID).
		Str("intent_id", intent.ID).
		Int64("amount", req.Amount).
		Msg("payment intent created")
	return intent, nil
}

// ConfirmPayment verifies the intent succeeded and places the escrow hold.
// Safe to call repeatedly: the hold is idempotent per booking.
func (s *PaymentServiceImpl) ConfirmPayment(ctx context.Context, req ports.ConfirmPaymentRequest) (*domain.Transaction, error) {
	if req.PaymentIntentID == "" || req.BookingID == "" {
		return nil, apperror.Validation("paymentIntentId and bookingId are required")
	}

	intent, err := s.callProvider(ctx, func(ctx context.Context) (*ports.PaymentIntent, error) {
		return s.provider.GetIntent(ctx, req.PaymentIntentID)
	})
	if err != nil {
		return nil, apperror.ErrPaymentProvider(err)
	}
	if intent.Status != ports.IntentStatusSucceeded {
		return nil, apperror.ErrPaymentNotSucceeded(intent.Status)
	}
	if intent.Metadata["bookingId"] != req.BookingID {
		return nil, apperror.Validation("payment intent does not belong to this booking")
	}

	return s.escrowSvc.Hold(ctx, ports.HoldRequest{
		BookingID:       req.BookingID,
		TravelerID:      intent.Metadata["travelerId"],
		SenderID:        intent.Metadata["senderId"],
		Amount:          intent.Amount,
		Currency:        intent.Currency,
		PaymentIntentID: intent.ID,
	})
}

// RefundPayment refunds the provider charge and then applies the escrow
// refund. The provider call goes first: if the card refund fails, the ledger
// stays HELD and the operation can be retried. Anything the ledger would
// reject must be rejected here too, before money moves at the provider.
func (s *PaymentServiceImpl) RefundPayment(ctx context.Context, req ports.RefundPaymentRequest) (*domain.Transaction, error) {
	if req.BookingID == "" {
		return nil, apperror.Validation("bookingId is required")
	}

	state, hold, err := s.escrowSvc.StateOf(ctx, req.BookingID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, apperror.ErrNotFound("escrow hold")
	}
	if state != domain.EscrowStateHeld {
		return nil, apperror.ErrInvalidTransition(fmt.Sprintf(
			"booking %s is %s, cannot refund", req.BookingID, state))
	}
	if req.Amount > hold.Amount {
		return nil, apperror.ErrInsufficientFunds()
	}
	if req.Amount != 0 && req.Amount != hold.Amount {
		return nil, apperror.Validation("partial settlement is not supported")
	}

	if hold.PaymentIntentID != nil && *hold.PaymentIntentID != "" {
		_, err = s.callProviderRefund(ctx, ports.RefundParams{
			IntentID: *hold.PaymentIntentID,
			Amount:   req.Amount,
			Reason:   req.Reason,
			Metadata: map[string]string{"bookingId": req.BookingID},
			// One refund per booking at the provider, no matter how often
			// this path retries.
			IdempotencyKey: "refund-" + req.BookingID,
		})
		if err != nil {
			return nil, apperror.ErrPaymentProvider(err)
		}
	}

	return s.escrowSvc.Refund(ctx, ports.SettleRequest{
		BookingID: req.BookingID,
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
}

// HandleProviderEvent applies a verified webhook event. Redelivered events
// are no-ops because the underlying hold is idempotent.
func (s *PaymentServiceImpl) HandleProviderEvent(ctx context.Context, event ports.ProviderEvent) error {
	switch event.Type {
	case ports.EventPaymentSucceeded:
		bookingID := event.Metadata["bookingId"]
		if bookingID == "" {
			s.log.Warn().Str("intent_id", event.IntentID).Msg("payment succeeded event without bookingId, ignoring")
			return nil
		}
		_, err := s.escrowSvc.Hold(ctx, ports.HoldRequest{
			BookingID:       bookingID,
			TravelerID:      event.Metadata["travelerId"],
			SenderID:        event.Metadata["senderId"],
			Amount:          event.Amount,
			Currency:        event.Currency,
			PaymentIntentID: event.IntentID,
		})
		return err
	case ports.EventPaymentFailed:
		bookingID := event.Metadata["bookingId"]
		s.log.Warn().
			Str("booking_id", bookingID).
			Str("intent_id", event.IntentID).
			Str("reason", event.FailureMessage).
			Msg("payment failed")
		if s.notifier != nil && bookingID != "" {
			s.notifier.PaymentFailed(ctx, bookingID, event.Metadata["senderId"], event.FailureMessage)
		}
		return nil
	default:
		s.log.Debug().Str("type", event.Type).Msg("ignoring provider event")
		return nil
	}
}

// callProvider runs one provider call with a single retry after a short
// backoff. Provider latency is observed per attempt.
func (s *PaymentServiceImpl) callProvider(ctx context.Context, call func(context.Context) (*ports.PaymentIntent, error)) (*ports.PaymentIntent, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(providerRetryDelay):
			}
		}
		start := time.Now()
		intent, err := call(ctx)
		if s.metrics != nil {
			s.metrics.ObserveProviderLatency(time.Since(start).Seconds())
		}
		if err == nil {
			return intent, nil
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("payment provider call failed")
	}
	return nil, lastErr
}

func (s *PaymentServiceImpl) callProviderRefund(ctx context.Context, params ports.RefundParams) (*ports.ProviderRefund, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(providerRetryDelay):
			}
		}
		start := time.Now()
		refund, err := s.provider.CreateRefund(ctx, params)
		if s.metrics != nil {
			s.metrics.ObserveProviderLatency(time.Since(start).Seconds())
		}
		if err == nil {
			return refund, nil
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("provider refund failed")
	}
	return nil, lastErr
}
