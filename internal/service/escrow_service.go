package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const idempotencyTTL = 24 * time.Hour

// EscrowServiceImpl implements ports.EscrowService: the per-booking
// hold -> release|refund state machine with pessimistic locking.
type EscrowServiceImpl struct {
	escrowRepo ports.EscrowRepository
	walletRepo ports.WalletRepository
	txRepo     ports.TransactionRepository
	idempCache ports.IdempotencyCache
	transactor ports.DBTransactor
	notifier   ports.NotificationService
	metrics    *LedgerMetrics
	log        zerolog.Logger
}

// NewEscrowService creates a new EscrowServiceImpl. notifier and metrics may
// be nil, in which case the corresponding side effects are skipped.
func NewEscrowService(
	escrowRepo ports.EscrowRepository,
	walletRepo ports.WalletRepository,
	txRepo ports.TransactionRepository,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	notifier ports.NotificationService,
	metrics *LedgerMetrics,
	log zerolog.Logger,
) *EscrowServiceImpl {
	return &EscrowServiceImpl{
		escrowRepo: escrowRepo,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		idempCache: idempCache,
		transactor: transactor,
		notifier:   notifier,
		metrics:    metrics,
		log:        log,
	}
}

// Hold places funds in escrow for a booking: the traveler's pending balance
// grows by the amount and a pending hold transaction is appended. At most one
// hold ever exists per booking; duplicate triggers return the original result.
func (s *EscrowServiceImpl) Hold(ctx context.Context, req ports.HoldRequest) (*domain.Transaction, error) {
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.BookingID == "" || req.TravelerID == "" || req.SenderID == "" {
		return nil, apperror.Validation("bookingId, travelerId and senderId are required")
	}
	if req.Currency == "" {
		return nil, apperror.Validation("currency is required")
	}

	idempKey := domain.BuildHoldKey(req.BookingID)

	// Layer 1: Redis idempotency check (best-effort)
	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		return s.unmarshalCachedTransaction(cached)
	}

	// Layer 2: existing hold in the DB
	existing, err := s.escrowRepo.Get(ctx, req.BookingID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check existing hold: %w", err))
	}
	if existing != nil {
		return s.holdTransactionOf(ctx, existing)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock (or lazily create) the traveler's wallet
	wallet, err := s.getOrCreateWalletForUpdate(ctx, dbTx, req.TravelerID, req.Currency)
	if err != nil {
		return nil, err
	}
	if wallet.Currency != req.Currency {
		return nil, apperror.ErrCurrencyMismatch()
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      req.TravelerID,
		BookingID:   req.BookingID,
		Type:        domain.TransactionTypeHold,
		Status:      domain.TransactionStatusPending,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: "escrow hold for booking " + req.BookingID,
		Metadata:    map[string]string{"senderId": req.SenderID},
		CreatedAt:   now,
	}
	if req.PaymentIntentID != "" {
		txn.Metadata["paymentIntentId"] = req.PaymentIntentID
	}

	hold := &domain.EscrowHold{
		BookingID:         req.BookingID,
		TravelerID:        req.TravelerID,
		SenderID:          req.SenderID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		State:             domain.EscrowStateHeld,
		HoldTransactionID: txn.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.PaymentIntentID != "" {
		hold.PaymentIntentID = &req.PaymentIntentID
	}

	// The unique booking_id constraint is the compare-and-set: a concurrent
	// hold for the same booking loses here and the whole tx rolls back.
	if err := s.escrowRepo.Create(ctx, dbTx, hold); err != nil {
		if err == ports.ErrDuplicateBooking {
			_ = dbTx.Rollback(ctx)
			return s.replayExistingHold(ctx, req.BookingID)
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create escrow hold: %w", err))
	}

	if _, err := s.walletRepo.ApplyDelta(ctx, dbTx, req.TravelerID, domain.WalletDelta{Pending: req.Amount}); err != nil {
		return nil, s.mapDeltaError(err, "apply hold delta")
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create hold transaction: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.cacheResult(ctx, idempKey, txn)
	s.observe("hold")

	s.log.Info().
		Str("booking_id", req.BookingID).
		Str("tx_id", txn.ID.String()).
		Int64("amount", req.Amount).
		Msg("escrow hold placed")

	if s.notifier != nil {
		s.notifier.HoldPlaced(ctx, hold, txn)
	}
	return txn, nil
}

// Release settles the escrow in the traveler's favor: pending funds become
// available earnings. Terminal states reject the transition.
func (s *EscrowServiceImpl) Release(ctx context.Context, req ports.SettleRequest) (*domain.Transaction, error) {
	return s.settle(ctx, req, domain.EscrowStateReleased)
}

// Refund settles the escrow in the sender's favor: the traveler's pending
// funds are removed and credited back to the sender's wallet.
func (s *EscrowServiceImpl) Refund(ctx context.Context, req ports.SettleRequest) (*domain.Transaction, error) {
	return s.settle(ctx, req, domain.EscrowStateRefunded)
}

// StateOf reports the current escrow state for a booking. A booking with no
// hold row has never entered escrow.
func (s *EscrowServiceImpl) StateOf(ctx context.Context, bookingID string) (domain.EscrowState, *domain.EscrowHold, error) {
	if bookingID == "" {
		return domain.EscrowStateNone, nil, apperror.Validation("bookingId is required")
	}
	hold, err := s.escrowRepo.Get(ctx, bookingID)
	if err != nil {
		return domain.EscrowStateNone, nil, apperror.ErrDatabaseError(fmt.Errorf("get escrow hold: %w", err))
	}
	if hold == nil {
		return domain.EscrowStateNone, nil, nil
	}
	return hold.State, hold, nil
}

// settle performs the shared release/refund transition under the escrow row
// lock. The two directions differ only in wallet deltas and transaction type.
func (s *EscrowServiceImpl) settle(ctx context.Context, req ports.SettleRequest, target domain.EscrowState) (*domain.Transaction, error) {
	if req.BookingID == "" {
		return nil, apperror.Validation("bookingId is required")
	}
	if req.Amount < 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	txType := domain.TransactionTypeRelease
	if target == domain.EscrowStateRefunded {
		txType = domain.TransactionTypeRefund
	}

	idempKey := domain.BuildSettleKey(req.BookingID)

	cached, err := s.idempCache.Get(ctx, idempKey)
	if err != nil {
		s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
	}
	if cached != nil {
		txn, err := s.unmarshalCachedTransaction(cached)
		// A cached settlement of the other direction is not a replay: fall
		// through so the state machine can reject it.
		if err == nil && txn.Type == txType {
			return txn, nil
		}
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Settlement for one booking serializes on this row lock.
	hold, err := s.escrowRepo.GetForUpdate(ctx, dbTx, req.BookingID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock escrow hold: %w", err))
	}
	if hold == nil {
		return nil, apperror.ErrNotFound("escrow hold")
	}
	if !hold.State.CanTransitionTo(target) {
		// Already settled in this direction: the ledger row is the durable
		// idempotency record, so replay it even when the cache was cold.
		if hold.State == target {
			_ = dbTx.Rollback(ctx)
			return s.settleTransactionOf(ctx, req.BookingID, txType)
		}
		return nil, apperror.ErrInvalidTransition(fmt.Sprintf(
			"booking %s is %s, cannot %s", req.BookingID, hold.State, txType))
	}

	amount := req.Amount
	if amount == 0 {
		amount = hold.Amount
	}
	if amount > hold.Amount {
		return nil, apperror.ErrInsufficientFunds()
	}
	if amount < hold.Amount {
		return nil, apperror.Validation("partial settlement is not supported")
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:          uuid.New(),
		BookingID:   req.BookingID,
		Type:        txType,
		Status:      domain.TransactionStatusCompleted,
		Amount:      amount,
		Currency:    hold.Currency,
		Metadata:    map[string]string{},
		CreatedAt:   now,
		ProcessedAt: &now,
	}
	if req.Reason != "" {
		txn.Metadata["reason"] = req.Reason
	}

	if target == domain.EscrowStateReleased {
		txn.UserID = hold.TravelerID
		txn.Description = "funds released for booking " + req.BookingID
		_, err = s.walletRepo.ApplyDelta(ctx, dbTx, hold.TravelerID, domain.WalletDelta{
			Pending:   -amount,
			Available: amount,
			Earnings:  amount,
		})
		if err != nil {
			return nil, s.mapDeltaError(err, "apply release delta")
		}
	} else {
		txn.UserID = hold.SenderID
		txn.Description = "refund issued for booking " + req.BookingID
		if _, err = s.walletRepo.ApplyDelta(ctx, dbTx, hold.TravelerID, domain.WalletDelta{Pending: -amount}); err != nil {
			return nil, s.mapDeltaError(err, "unwind traveler pending")
		}
		// The sender may never have had a wallet; refunds create one.
		if _, err = s.getOrCreateWalletForUpdate(ctx, dbTx, hold.SenderID, hold.Currency); err != nil {
			return nil, err
		}
		_, err = s.walletRepo.ApplyDelta(ctx, dbTx, hold.SenderID, domain.WalletDelta{
			Available: amount,
			Spent:     -amount,
		})
		if err != nil {
			return nil, s.mapDeltaError(err, "apply refund delta")
		}
	}

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create settle transaction: %w", err))
	}
	if err := s.txRepo.UpdateStatus(ctx, dbTx, hold.HoldTransactionID, domain.TransactionStatusCompleted); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("complete hold transaction: %w", err))
	}

	var reason *string
	if req.Reason != "" {
		reason = &req.Reason
	}
	if err := s.escrowRepo.UpdateState(ctx, dbTx, req.BookingID, target, &txn.ID, reason); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update escrow state: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.cacheResult(ctx, idempKey, txn)
	s.observe(string(txType))

	s.log.Info().
		Str("booking_id", req.BookingID).
		Str("tx_id", txn.ID.String()).
		Str("transition", string(txType)).
		Int64("amount", amount).
		Msg("escrow settled")

	if s.notifier != nil {
		hold.State = target
		hold.SettleTransactionID = &txn.ID
		if target == domain.EscrowStateReleased {
			s.notifier.FundsReleased(ctx, hold, txn)
		} else {
			s.notifier.RefundIssued(ctx, hold, txn)
		}
	}
	return txn, nil
}

// replayExistingHold handles the loser of a racing hold insert: the winner's
// transaction is the canonical result.
func (s *EscrowServiceImpl) replayExistingHold(ctx context.Context, bookingID string) (*domain.Transaction, error) {
	hold, err := s.escrowRepo.Get(ctx, bookingID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("re-read hold after conflict: %w", err))
	}
	if hold == nil {
		return nil, apperror.InternalError(fmt.Errorf("hold vanished after duplicate conflict for booking %s", bookingID))
	}
	return s.holdTransactionOf(ctx, hold)
}

// settleTransactionOf looks up the recorded settlement for a booking. At most
// one transaction of each settle type exists per booking.
func (s *EscrowServiceImpl) settleTransactionOf(ctx context.Context, bookingID string, txType domain.TransactionType) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByBookingAndType(ctx, bookingID, txType)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get settle transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.InternalError(fmt.Errorf("settle transaction missing for booking %s", bookingID))
	}
	return txn, nil
}

func (s *EscrowServiceImpl) holdTransactionOf(ctx context.Context, hold *domain.EscrowHold) (*domain.Transaction, error) {
	txn, err := s.txRepo.GetByID(ctx, hold.HoldTransactionID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get hold transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.InternalError(fmt.Errorf("hold transaction %s missing for booking %s", hold.HoldTransactionID, hold.BookingID))
	}
	return txn, nil
}

// getOrCreateWalletForUpdate locks the user's wallet, creating a zero-balance
// one first if the user has never held funds.
func (s *EscrowServiceImpl) getOrCreateWalletForUpdate(ctx context.Context, dbTx pgx.Tx, userID, currency string) (*domain.Wallet, error) {
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

func (s *EscrowServiceImpl) mapDeltaError(err error, op string) error {
	if err == ports.ErrInsufficientBalance {
		return apperror.ErrInsufficientFunds()
	}
	return apperror.ErrDatabaseError(fmt.Errorf("%s: %w", op, err))
}

// cacheResult stores the serialized transaction for duplicate triggers.
// Best-effort: a cache failure only costs a DB round trip on replay.
func (s *EscrowServiceImpl) cacheResult(ctx context.Context, key string, txn *domain.Transaction) {
	respJSON, err := json.Marshal(txn)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to marshal transaction for cache")
		return
	}
	if err := s.idempCache.Set(ctx, key, respJSON, idempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency in redis")
	}
}

func (s *EscrowServiceImpl) observe(transition string) {
	if s.metrics != nil {
		s.metrics.TransitionApplied(transition)
	}
}

func (s *EscrowServiceImpl) unmarshalCachedTransaction(data []byte) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	if err := json.Unmarshal(data, txn); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached tx: %w", err))
	}
	return txn, nil
}
