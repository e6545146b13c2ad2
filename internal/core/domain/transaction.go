package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType represents the kind of money movement.
type TransactionType string

const (
	TransactionTypeHold       TransactionType = "hold"
	TransactionTypeRelease    TransactionType = "release"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeEarning    TransactionType = "earning"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
	TransactionTypeDeposit    TransactionType = "deposit"
)

// TransactionStatus represents the lifecycle state of a transaction.
// Entries are immutable after append except for the pending -> completed|failed
// status transition.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only ledger entry for one balance-affecting event.
type Transaction struct {
	ID          uuid.UUID         `json:"id"`
	UserID      string            `json:"user_id"`
	BookingID   string            `json:"booking_id,omitempty"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	Amount      int64             `json:"amount"` // Minor units, always positive
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"` // Provider ids, reasons
	CreatedAt   time.Time         `json:"created_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

// ValidType reports whether tt is one of the known transaction types.
func ValidType(tt TransactionType) bool {
	switch tt {
	case TransactionTypeHold, TransactionTypeRelease, TransactionTypeRefund,
		TransactionTypeEarning, TransactionTypeWithdrawal, TransactionTypeDeposit:
		return true
	}
	return false
}
