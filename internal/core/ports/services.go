package ports

import (
	"context"
	"time"

	"crowdwave-ledger/internal/core/domain"
)

// IdempotencyCache is the Redis-layer fast path for replayed triggers: the
// serialized transaction result of an applied transition, keyed per booking.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TokenService handles JWT token operations for caller identity.
type TokenService interface {
	Generate(userID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	UserID string
}

// --- Service Ports (Business Logic) ---

// EscrowService enforces the per-booking hold -> release|refund state
// machine, exactly once per transition, under retries and duplicate triggers.
type EscrowService interface {
	Hold(ctx context.Context, req HoldRequest) (*domain.Transaction, error)
	Release(ctx context.Context, req SettleRequest) (*domain.Transaction, error)
	Refund(ctx context.Context, req SettleRequest) (*domain.Transaction, error)
	// StateOf answers "what is the current escrow state for booking X".
	StateOf(ctx context.Context, bookingID string) (domain.EscrowState, *domain.EscrowHold, error)
}

// HoldRequest holds validated input for the hold transition.
type HoldRequest struct {
	BookingID       string
	TravelerID      string
	SenderID        string
	Amount          int64
	Currency        string
	PaymentIntentID string
}

// SettleRequest holds validated input for release or refund.
type SettleRequest struct {
	BookingID string
	Amount    int64
	Reason    string
}

// WalletService exposes direct wallet operations outside the escrow flow.
type WalletService interface {
	Deposit(ctx context.Context, userID string, amount int64, currency string) (*domain.Transaction, error)
	Withdraw(ctx context.Context, userID string, amount int64) (*domain.Transaction, error)
	GetBalance(ctx context.Context, userID string) (*domain.Wallet, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, userID string) (*WalletStats, error)
}

// PaymentService drives the payment-provider flow that feeds the escrow
// coordinator: intent creation, confirmation, refund, and webhook events.
type PaymentService interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*PaymentIntent, error)
	ConfirmPayment(ctx context.Context, req ConfirmPaymentRequest) (*domain.Transaction, error)
	RefundPayment(ctx context.Context, req RefundPaymentRequest) (*domain.Transaction, error)
	HandleProviderEvent(ctx context.Context, event ProviderEvent) error
}

// CreateIntentRequest holds validated input for intent creation.
type CreateIntentRequest struct {
	BookingID  string
	SenderID   string
	TravelerID string
	Amount     int64
	Currency   string
	Metadata   map[string]string
}

// ConfirmPaymentRequest holds input for payment confirmation.
type ConfirmPaymentRequest struct {
	PaymentIntentID string
	BookingID       string
}

// RefundPaymentRequest holds input for a provider refund plus escrow refund.
type RefundPaymentRequest struct {
	BookingID string
	Amount    int64 // 0 = full hold amount
	Reason    string
}

// ProviderEvent is a normalized payment-provider webhook event.
type ProviderEvent struct {
	Type           string // "payment_intent.succeeded", "payment_intent.payment_failed"
	IntentID       string
	Amount         int64
	Currency       string
	Metadata       map[string]string // bookingId, travelerId, senderId
	FailureMessage string
}

// Provider event types handled by the payment service.
const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

// PaymentProvider is the card-processing collaborator.
type PaymentProvider interface {
	CreateIntent(ctx context.Context, params CreateIntentParams) (*PaymentIntent, error)
	GetIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	CreateRefund(ctx context.Context, params RefundParams) (*ProviderRefund, error)
}

// CreateIntentParams are the provider-side intent parameters.
type CreateIntentParams struct {
	Amount   int64
	Currency string
	Metadata map[string]string
}

// RefundParams are the provider-side refund parameters.
type RefundParams struct {
	IntentID string
	Amount   int64 // 0 = full refund
	Reason   string
	Metadata map[string]string
	// IdempotencyKey makes retried refund calls safe: the provider returns
	// the original refund instead of issuing another one.
	IdempotencyKey string
}

// PaymentIntent is the provider's view of a payment.
type PaymentIntent struct {
	ID           string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	Metadata     map[string]string
}

// IntentStatusSucceeded is the only intent status that permits a hold.
const IntentStatusSucceeded = "succeeded"

// ProviderRefund is the provider's refund record.
type ProviderRefund struct {
	ID     string
	Status string
}

// PushNotifier sends a push notification by device token.
type PushNotifier interface {
	Send(ctx context.Context, token, title, body string, payload domain.PushPayload) error
}

// EmailMessage is a rendered transactional email.
type EmailMessage struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Mailer delivers transactional email.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// NotificationService fans out best-effort push + email for ledger events.
// Failures are logged, never propagated to the financial transition.
type NotificationService interface {
	HoldPlaced(ctx context.Context, hold *domain.EscrowHold, txn *domain.Transaction)
	FundsReleased(ctx context.Context, hold *domain.EscrowHold, txn *domain.Transaction)
	RefundIssued(ctx context.Context, hold *domain.EscrowHold, txn *domain.Transaction)
	PaymentFailed(ctx context.Context, bookingID, userID, reason string)
}
