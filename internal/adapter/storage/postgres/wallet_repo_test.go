package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWallet(userID string) *domain.Wallet {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Wallet{
		UserID:           userID,
		Currency:         "usd",
		AvailableBalance: 5000,
		PendingBalance:   1500,
		TotalEarnings:    7000,
		TotalSpent:       2000,
		TotalWithdrawals: 0,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func walletCols() []string {
	return []string{"user_id", "currency", "available_balance", "pending_balance",
		"total_earnings", "total_spent", "total_withdrawals", "created_at", "updated_at"}
}

func walletRow(w *domain.Wallet) *pgxmock.Rows {
	return pgxmock.NewRows(walletCols()).AddRow(
		w.UserID, w.Currency, w.AvailableBalance, w.PendingBalance,
		w.TotalEarnings, w.TotalSpent, w.TotalWithdrawals, w.CreatedAt, w.UpdatedAt,
	)
}

func TestWalletRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("user-1")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallets").
		WithArgs(w.UserID, w.Currency, w.AvailableBalance, w.PendingBalance,
			w.TotalEarnings, w.TotalSpent, w.TotalWithdrawals, w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, w)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByUserID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("user-1")

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").
		WithArgs(w.UserID).
		WillReturnRows(walletRow(w))

	result, err := repo.GetByUserID(context.Background(), w.UserID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.UserID, result.UserID)
	assert.Equal(t, int64(5000), result.AvailableBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetByUserID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(walletCols()))

	result, err := repo.GetByUserID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_GetForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("user-1")

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE user_id .+ FOR UPDATE").
		WithArgs(w.UserID).
		WillReturnRows(walletRow(w))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetForUpdate(context.Background(), tx, w.UserID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.UserID, result.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_ApplyDelta(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	w := newTestWallet("user-1")
	w.AvailableBalance = 4000
	w.PendingBalance = 2500
	delta := domain.WalletDelta{Available: -1000, Pending: 1000}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET").
		WithArgs(delta.Available, delta.Pending, delta.Earnings, delta.Spent, delta.Withdrawals, w.UserID).
		WillReturnRows(walletRow(w))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.ApplyDelta(context.Background(), tx, w.UserID, delta)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), result.AvailableBalance)
	assert.Equal(t, int64(2500), result.PendingBalance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletRepo_ApplyDelta_CheckViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWalletRepo(mock)
	delta := domain.WalletDelta{Available: -999999}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE wallets SET").
		WithArgs(delta.Available, delta.Pending, delta.Earnings, delta.Spent, delta.Withdrawals, "user-1").
		WillReturnError(&pgconn.PgError{Code: "23514"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	_, err = repo.ApplyDelta(context.Background(), tx, "user-1", delta)
	assert.True(t, errors.Is(err, ports.ErrInsufficientBalance))
	assert.NoError(t, mock.ExpectationsWereMet())
}
