package postgres

import (
	"context"
	"errors"
	"fmt"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const walletColumns = `user_id, currency, available_balance, pending_balance,
	total_earnings, total_spent, total_withdrawals, created_at, updated_at`

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	pool Pool
}

// NewWalletRepo creates a new WalletRepo.
func NewWalletRepo(pool Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// Create inserts a wallet row if one does not exist yet. Concurrent creators
// for the same user are safe: the insert is a no-op when the row is already
// there, and callers re-read under lock afterwards.
func (r *WalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	query := `INSERT INTO wallets (user_id, currency, available_balance, pending_balance,
			total_earnings, total_spent, total_withdrawals, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO NOTHING`

	_, err := tx.Exec(ctx, query,
		w.UserID, w.Currency, w.AvailableBalance, w.PendingBalance,
		w.TotalEarnings, w.TotalSpent, w.TotalWithdrawals, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

// GetByUserID fetches a wallet without locking. Returns (nil, nil) when the
// user has no wallet yet.
func (r *WalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1`

	w := &domain.Wallet{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.Currency, &w.AvailableBalance, &w.PendingBalance,
		&w.TotalEarnings, &w.TotalSpent, &w.TotalWithdrawals, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet by user id: %w", err)
	}
	return w, nil
}

// GetForUpdate fetches a wallet with a pessimistic row lock.
// This MUST be called within a transaction.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = $1 FOR UPDATE`

	w := &domain.Wallet{}
	err := tx.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.Currency, &w.AvailableBalance, &w.PendingBalance,
		&w.TotalEarnings, &w.TotalSpent, &w.TotalWithdrawals, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get wallet for update: %w", err)
	}
	return w, nil
}

// ApplyDelta atomically adjusts the wallet balances within a transaction and
// returns the updated row. The table's CHECK constraints are the last line of
// defense against negative balances; a violation maps to ErrInsufficientBalance.
func (r *WalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, userID string, d domain.WalletDelta) (*domain.Wallet, error) {
	query := `UPDATE wallets SET
			available_balance = available_balance + $1,
			pending_balance = pending_balance + $2,
			total_earnings = total_earnings + $3,
			total_spent = GREATEST(0, total_spent + $4),
			total_withdrawals = total_withdrawals + $5,
			updated_at = NOW()
		WHERE user_id = $6
		RETURNING ` + walletColumns

	w := &domain.Wallet{}
	err := tx.QueryRow(ctx, query,
		d.Available, d.Pending, d.Earnings, d.Spent, d.Withdrawals, userID,
	).Scan(
		&w.UserID, &w.Currency, &w.AvailableBalance, &w.PendingBalance,
		&w.TotalEarnings, &w.TotalSpent, &w.TotalWithdrawals, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("apply wallet delta: wallet not found: %s", userID)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" { // check_violation
			return nil, ports.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("apply wallet delta: %w", err)
	}
	return w, nil
}
