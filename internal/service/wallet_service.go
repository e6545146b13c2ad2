package service

import (
	"context"
	"fmt"
	"time"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// DefaultCurrency is assumed when a user's wallet is lazily created outside
// the payment flow.
const DefaultCurrency = "usd"

// WalletServiceImpl implements ports.WalletService: deposits, withdrawals and
// read-side wallet queries outside the escrow flow.
type WalletServiceImpl struct {
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	metrics    *LedgerMetrics
	log        zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl. metrics may be nil.
func NewWalletService(
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	metrics *LedgerMetrics,
	log zerolog.Logger,
) *WalletServiceImpl {
	return &WalletServiceImpl{
		walletRepo: walletRepo,
		txRepo:     txRepo,
		transactor: transactor,
		metrics:    metrics,
		log:        log,
	}
}

// Deposit credits a user's available balance directly.
func (s *WalletServiceImpl) Deposit(ctx context.Context, userID string, amount int64, currency string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if currency == "" {
		currency = DefaultCurrency
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.lockOrCreateWallet(ctx, dbTx, userID, currency)
	if err != nil {
		return nil, err
	}
	if wallet.Currency != currency {
		return nil, apperror.ErrCurrencyMismatch()
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        domain.TransactionTypeDeposit,
		Status:      domain.TransactionStatusCompleted,
		Amount:      amount,
		Currency:    currency,
		Description: "wallet deposit",
		CreatedAt:   now,
		ProcessedAt: &now,
	}

	if _, err := s.walletRepo.ApplyDelta(ctx, dbTx, userID, domain.WalletDelta{Available: amount}); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("apply deposit delta: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create deposit transaction: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	if s.metrics != nil {
		s.metrics.WalletOperation("deposit")
	}
	s.log.Info().Str("user_id", userID).Int64("amount", amount).Msg("deposit processed")
	return txn, nil
}

// Withdraw debits a user's available balance. Pending escrow funds are not
// withdrawable.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, userID string, amount int64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}
	if wallet.AvailableBalance < amount {
		return nil, apperror.ErrInsufficientFunds()
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        domain.TransactionTypeWithdrawal,
		Status:      domain.TransactionStatusCompleted,
		Amount:      amount,
		Currency:    wallet.Currency,
		Description: "wallet withdrawal",
		CreatedAt:   now,
		ProcessedAt: &now,
	}

	if _, err := s.walletRepo.ApplyDelta(ctx, dbTx, userID, domain.WalletDelta{
		Available:   -amount,
		Withdrawals: amount,
	}); err != nil {
		if err == ports.ErrInsufficientBalance {
			return nil, apperror.ErrInsufficientFunds()
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("apply withdrawal delta: %w", err))
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create withdrawal transaction: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	if s.metrics != nil {
		s.metrics.WalletOperation("withdrawal")
	}
	s.log.Info().Str("user_id", userID).Int64("amount", amount).Msg("withdrawal processed")
	return txn, nil
}

// GetBalance returns the user's wallet, or a zero-balance view for users who
// have never transacted.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID string) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return domain.NewWallet(userID, DefaultCurrency), nil
	}
	return wallet, nil
}

// ListTransactions returns a page of the user's ledger history.
func (s *WalletServiceImpl) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}
	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, total, nil
}

// GetStats returns aggregate ledger totals for the user.
func (s *WalletServiceImpl) GetStats(ctx context.Context, userID string) (*ports.WalletStats, error) {
	stats, err := s.txRepo.GetStats(ctx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get stats: %w", err))
	}
	return stats, nil
}

func (s *WalletServiceImpl) lockOrCreateWallet(ctx context.Context, dbTx pgx.Tx, userID, currency string) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet != nil {
		return wallet, nil
	}
	if err := s.walletRepo.Create(ctx, dbTx, domain.NewWallet(userID, currency)); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create wallet: %w", err))
	}
	wallet, err = s.walletRepo.GetForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("re-lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.InternalError(fmt.Errorf("wallet missing after create for user %s", userID))
	}
	return wallet, nil
}
