package domain

import (
	"time"
)

// Wallet holds per-user balances in minor units of a single currency.
// Available funds are spendable; pending funds are held in escrow until a
// booking is released or refunded. Wallets are created lazily on first use
// and never deleted.
type Wallet struct {
	UserID           string    `json:"user_id"`
	Currency         string    `json:"currency"` // ISO 4217, fixed at creation
	AvailableBalance int64     `json:"available_balance"`
	PendingBalance   int64     `json:"pending_balance"`
	TotalEarnings    int64     `json:"total_earnings"`
	TotalSpent       int64     `json:"total_spent"`
	TotalWithdrawals int64     `json:"total_withdrawals"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WalletDelta is a set of signed balance adjustments applied atomically.
// Balances are only ever mutated through a delta inside a database
// transaction, never by direct field writes.
type WalletDelta struct {
	Available   int64
	Pending     int64
	Earnings    int64
	Spent       int64
	Withdrawals int64
}

// NewWallet returns a zero-balance wallet for the given user and currency.
func NewWallet(userID, currency string) *Wallet {
	now := time.Now().UTC()
	return &Wallet{
		UserID:    userID,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply returns the wallet that results from applying d, or an error string
// naming the violated invariant. It does not mutate the receiver.
func (w Wallet) Apply(d WalletDelta) (Wallet, bool) {
	w.AvailableBalance += d.Available
	w.PendingBalance += d.Pending
	w.TotalEarnings += d.Earnings
	w.TotalSpent += d.Spent
	w.TotalWithdrawals += d.Withdrawals
	if w.AvailableBalance < 0 || w.PendingBalance < 0 {
		return w, false
	}
	// TotalSpent is decremented on refund but never below zero.
	if w.TotalSpent < 0 {
		w.TotalSpent = 0
	}
	return w, true
}
