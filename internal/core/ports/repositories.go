package ports

import (
	"context"
	"errors"

	"crowdwave-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrDuplicateBooking is returned by EscrowRepository.Create when a hold row
// already exists for the booking. The escrow coordinator treats it as "the
// other writer won" and replays the existing result.
var ErrDuplicateBooking = errors.New("escrow hold already exists for booking")

// ErrInsufficientBalance is returned by WalletRepository.ApplyDelta when the
// resulting available or pending balance would go negative. Services surface
// it to callers as an InsufficientFunds failure.
var ErrInsufficientBalance = errors.New("balance would go negative")

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx run inside transaction blocks so the wallet
// mutation and the ledger append commit or roll back together.
type WalletRepository interface {
	Create(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet) error
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error)
	// ApplyDelta atomically adds the signed delta and returns the updated
	// wallet. The storage layer enforces non-negative balances as a backstop.
	ApplyDelta(ctx context.Context, tx pgx.Tx, userID string, delta domain.WalletDelta) (*domain.Wallet, error)
}

// TransactionRepository defines persistence for the append-only ledger.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// GetByBookingAndType is the idempotency lookup: at most one transaction
	// of a given type exists per booking.
	GetByBookingAndType(ctx context.Context, bookingID string, txType domain.TransactionType) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, userID string) (*WalletStats, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	UserID    string
	BookingID *string
	Type      *domain.TransactionType
	Status    *domain.TransactionStatus
	Page      int
	PageSize  int
}

// WalletStats holds per-user ledger aggregates.
type WalletStats struct {
	TotalTransactions int64
	TotalHeld         int64 // Sum of completed hold amounts
	TotalReleased     int64 // Sum of completed release amounts
	TotalRefunded     int64 // Sum of completed refund amounts
	TotalDeposited    int64 // Sum of completed deposit amounts
	TotalWithdrawn    int64 // Sum of completed withdrawal amounts
}

// EscrowRepository defines persistence for per-booking escrow state.
type EscrowRepository interface {
	// Create inserts the hold row. Returns ErrDuplicateBooking if a row for
	// the booking already exists (the at-most-once hold guarantee).
	Create(ctx context.Context, tx pgx.Tx, hold *domain.EscrowHold) error
	Get(ctx context.Context, bookingID string) (*domain.EscrowHold, error)
	// GetForUpdate locks the hold row, serializing release/refund attempts
	// for the same booking.
	GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (*domain.EscrowHold, error)
	UpdateState(ctx context.Context, tx pgx.Tx, bookingID string, state domain.EscrowState, settleTxID *uuid.UUID, reason *string) error
}

// ContactRepository stores notification contact points per user.
type ContactRepository interface {
	Get(ctx context.Context, userID string) (*domain.Contact, error)
	Upsert(ctx context.Context, contact *domain.Contact) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
