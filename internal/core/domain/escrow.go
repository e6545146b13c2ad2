package domain

import (
	"time"

	"github.com/google/uuid"
)

// EscrowState is the per-booking escrow lifecycle state. A booking with no
// EscrowHold row is in StateNone; HELD is entered exactly once; RELEASED and
// REFUNDED are terminal.
type EscrowState string

const (
	EscrowStateNone     EscrowState = "NONE"
	EscrowStateHeld     EscrowState = "HELD"
	EscrowStateReleased EscrowState = "RELEASED"
	EscrowStateRefunded EscrowState = "REFUNDED"
)

// CanTransitionTo reports whether the state machine permits moving to next.
func (s EscrowState) CanTransitionTo(next EscrowState) bool {
	switch s {
	case EscrowStateNone:
		return next == EscrowStateHeld
	case EscrowStateHeld:
		return next == EscrowStateReleased || next == EscrowStateRefunded
	}
	return false
}

// IsTerminal returns true for the settled states.
func (s EscrowState) IsTerminal() bool {
	return s == EscrowStateReleased || s == EscrowStateRefunded
}

// EscrowHold is the durable record of funds held for one booking. The
// booking ID is the primary key: inserting the row is the atomic
// "hold does not yet exist" check that makes Hold at-most-once, so the
// state never has to be re-derived from the transaction log.
type EscrowHold struct {
	BookingID           string      `json:"booking_id"`
	TravelerID          string      `json:"traveler_id"`
	SenderID            string      `json:"sender_id"`
	Amount              int64       `json:"amount"`
	Currency            string      `json:"currency"`
	State               EscrowState `json:"state"`
	HoldTransactionID   uuid.UUID   `json:"hold_transaction_id"`
	SettleTransactionID *uuid.UUID  `json:"settle_transaction_id,omitempty"`
	PaymentIntentID     *string     `json:"payment_intent_id,omitempty"`
	Reason              *string     `json:"reason,omitempty"` // Release/refund reason
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// BuildHoldKey constructs the idempotency cache key for a hold.
func BuildHoldKey(bookingID string) string {
	return "escrow:hold:" + bookingID
}

// BuildSettleKey constructs the idempotency cache key for a release or refund.
func BuildSettleKey(bookingID string) string {
	return "escrow:settle:" + bookingID
}
