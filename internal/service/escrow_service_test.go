package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"
	"crowdwave-ledger/internal/core/ports/mocks"
	"crowdwave-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

func assertAppError(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	assert.Equal(t, code, appErr.Code)
}

type escrowTestDeps struct {
	svc        *EscrowServiceImpl
	escrowRepo *mocks.MockEscrowRepository
	walletRepo *mocks.MockWalletRepository
	txRepo     *mocks.MockTransactionRepository
	idempCache *mocks.MockIdempotencyCache
	transactor *mocks.MockDBTransactor
	notifier   *mocks.MockNotificationService
	ctrl       *gomock.Controller
}

func setupEscrowService(t *testing.T) *escrowTestDeps {
	ctrl := gomock.NewController(t)
	d := &escrowTestDeps{
		escrowRepo: mocks.NewMockEscrowRepository(ctrl),
		walletRepo: mocks.NewMockWalletRepository(ctrl),
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		idempCache: mocks.NewMockIdempotencyCache(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
		notifier:   mocks.NewMockNotificationService(ctrl),
		ctrl:       ctrl,
	}
	d.svc = NewEscrowService(
		d.escrowRepo, d.walletRepo, d.txRepo, d.idempCache,
		d.transactor, d.notifier, nil, zerolog.Nop(),
	)
	return d
}

func holdRequest() ports.HoldRequest {
	return ports.HoldRequest{
		BookingID:       "booking-1",
		TravelerID:      "traveler-1",
		SenderID:        "sender-1",
		Amount:          2500,
		Currency:        "usd",
		PaymentIntentID: "pi_123",
	}
}

func heldEscrow(holdTxID uuid.UUID) *domain.EscrowHold {
	intentID := "pi_123"
	return &domain.EscrowHold{
		BookingID:         "booking-1",
		TravelerID:        "traveler-1",
		SenderID:          "sender-1",
		Amount:            2500,
		Currency:          "usd",
		State:             domain.EscrowStateHeld,
		HoldTransactionID: holdTxID,
		PaymentIntentID:   &intentID,
	}
}

// ==================== Hold ====================

func TestEscrowService_Hold_Success(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := domain.BuildHoldKey("booking-1")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.escrowRepo.EXPECT().Get(ctx, "booking-1").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetForUpdate(ctx, tx, "traveler-1").Return(&domain.Wallet{
		UserID: "traveler-1", Currency: "usd",
	}, nil)
	d.escrowRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, "traveler-1", domain.WalletDelta{Pending: 2500}).
		Return(&domain.Wallet{UserID: "traveler-1", Currency: "usd", PendingBalance: 2500}, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), idempotencyTTL).Return(nil)
	d.notifier.EXPECT().HoldPlaced(ctx, gomock.Any(), gomock.Any())

	txn, err := d.svc.Hold(ctx, holdRequest())
	require.NoError(t, err)
	require.NotNil(t, txn)
	assert.Equal(t, domain.TransactionTypeHold, txn.Type)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.Equal(t, "traveler-1", txn.UserID)
	assert.Equal(t, int64(2500), txn.Amount)
	assert.Equal(t, "pi_123", txn.Metadata["paymentIntentId"])
}

func TestEscrowService_Hold_LazyWalletCreation(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := domain.BuildHoldKey("booking-1")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.escrowRepo.EXPECT().Get(ctx, "booking-1").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	// first lock attempt: no wallet yet
	d.walletRepo.EXPECT().GetForUpdate(ctx, tx, "traveler-1").Return(nil, nil)
	d.walletRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().GetForUpdate(ctx, tx, "traveler-1").Return(&domain.Wallet{
		UserID: "traveler-1", Currency: "usd",
	}, nil)
	d.escrowRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, "traveler-1", domain.WalletDelta{Pending: 2500}).
		Return(&domain.Wallet{UserID: "traveler-1", PendingBalance: 2500}, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), idempotencyTTL).Return(nil)
	d.notifier.EXPECT().HoldPlaced(ctx, gomock.Any(), gomock.Any())

	_, err := d.svc.Hold(ctx, holdRequest())
	require.NoError(t, err)
}

func TestEscrowService_Hold_InvalidAmount(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	req := holdRequest()
	req.Amount = 0

	txn, err := d.svc.Hold(context.Background(), req)
	assert.Nil(t, txn)
	assertAppError(t, err, "VAL_002")
}

func TestEscrowService_Hold_CachedReplay(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := domain.BuildHoldKey("booking-1")
	prior := &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeHold, Amount: 2500}
	cached, _ := json.Marshal(prior)

	d.idempCache.EXPECT().Get(ctx, key).Return(cached, nil)

	txn, err := d.svc.Hold(ctx, holdRequest())
	require.NoError(t, err)
	assert.Equal(t, prior.ID, txn.ID)
}

func TestEscrowService_Hold_ExistingHoldReplay(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := domain.BuildHoldKey("booking-1")
	holdTxID := uuid.New()
	prior := &domain.Transaction{ID: holdTxID, Type: domain.TransactionTypeHold, Amount: 2500}

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.escrowRepo.EXPECT().Get(ctx, "booking-1").Return(heldEscrow(holdTxID), nil)
	d.txRepo.EXPECT().GetByID(ctx, holdTxID).Return(prior, nil)

	txn, err := d.svc.Hold(ctx, holdRequest())
	require.NoError(t, err)
	assert.Equal(t, holdTxID, txn.ID)
}

func TestEscrowService_Hold_RacingDuplicate(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := domain.BuildHoldKey("booking-1")
	holdTxID := uuid.New()
	winner := &domain.Transaction{ID: holdTxID, Type: domain.TransactionTypeHold, Amount: 2500}

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.escrowRepo.EXPECT().Get(ctx, "booking-1").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetForUpdate(ctx, tx, "traveler-1").Return(&domain.Wallet{
		UserID: "traveler-1", Currency: "usd",
	}, nil)
	// lost the insert race
	d.escrowRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(ports.ErrDuplicateBooking)
	d.escrowRepo.EXPECT().Get(ctx, "booking-1").Return(heldEscrow(holdTxID), nil)
	d.txRepo.EXPECT().GetByID(ctx, holdTxID).Return(winner, nil)

	txn, err := d.svc.Hold(ctx, holdRequest())
	require.NoError(t, err)
	assert.Equal(t, holdTxID, txn.ID)
}

func TestEscrowService_Hold_CurrencyMismatch(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := domain.BuildHoldKey("booking-1")

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.escrowRepo.EXPECT().Get(ctx, "booking-1").Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.walletRepo.EXPECT().GetForUpdate(ctx, tx, "traveler-1").Return(&domain.Wallet{
		UserID: "traveler-1", Currency: "eur",
	}, nil)

	txn, err := d.svc.Hold(ctx, holdRequest())
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_004")
}

// ==================== Release ====================

func TestEscrowService_Release_Success(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := domain.BuildSettleKey("booking-1")
	holdTxID := uuid.New()

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetForUpdate(ctx, tx, "booking-1").Return(heldEscrow(holdTxID), nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, "traveler-1", domain.WalletDelta{
		Pending:   -2500,
		Available: 2500,
		Earnings:  2500,
	}).Return(&domain.Wallet{UserID: "traveler-1", AvailableBalance: 2500}, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, holdTxID, domain.TransactionStatusCompleted).Return(nil)
	d.escrowRepo.EXPECT().UpdateState(ctx, tx, "booking-1", domain.EscrowStateReleased, gomock.Any(), gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), idempotencyTTL).Return(nil)
	d.notifier.EXPECT().FundsReleased(ctx, gomock.Any(), gomock.Any())

	txn, err := d.svc.Release(ctx, ports.SettleRequest{BookingID: "booking-1", Reason: "delivered"})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeRelease, txn.Type)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "traveler-1", txn.UserID)
	assert.Equal(t, int64(2500), txn.Amount)
}

func TestEscrowService_Release_NotFound(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.idempCache.EXPECT().Get(ctx, domain.BuildSettleKey("missing")).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetForUpdate(ctx, tx, "missing").Return(nil, nil)

	txn, err := d.svc.Release(ctx, ports.SettleRequest{BookingID: "missing"})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_001")
}

func TestEscrowService_Release_AfterRefund(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	hold := heldEscrow(uuid.New())
	hold.State = domain.EscrowStateRefunded

	d.idempCache.EXPECT().Get(ctx, domain.BuildSettleKey("booking-1")).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetForUpdate(ctx, tx, "booking-1").Return(hold, nil)

	txn, err := d.svc.Release(ctx, ports.SettleRequest{BookingID: "booking-1"})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_002")
}

func TestEscrowService_Release_OverHeldAmount(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}

	d.idempCache.EXPECT().Get(ctx, domain.BuildSettleKey("booking-1")).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetForUpdate(ctx, tx, "booking-1").Return(heldEscrow(uuid.New()), nil)

	txn, err := d.svc.Release(ctx, ports.SettleRequest{BookingID: "booking-1", Amount: 9999})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_003")
}

func TestEscrowService_Release_CachedReplay(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	prior := &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeRelease, Amount: 2500}
	cached, _ := json.Marshal(prior)

	d.idempCache.EXPECT().Get(ctx, domain.BuildSettleKey("booking-1")).Return(cached, nil)

	txn, err := d.svc.Release(ctx, ports.SettleRequest{BookingID: "booking-1"})
	require.NoError(t, err)
	assert.Equal(t, prior.ID, txn.ID)
}

// A duplicate release whose cache entry expired still replays: the recorded
// release transaction in the ledger is the durable answer.
func TestEscrowService_Release_ReplayAfterCacheMiss(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	hold := heldEscrow(uuid.New())
	hold.State = domain.EscrowStateReleased
	prior := &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeRelease, Amount: 2500}

	d.idempCache.EXPECT().Get(ctx, domain.BuildSettleKey("booking-1")).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetForUpdate(ctx, tx, "booking-1").Return(hold, nil)
	d.txRepo.EXPECT().GetByBookingAndType(ctx, "booking-1", domain.TransactionTypeRelease).Return(prior, nil)

	txn, err := d.svc.Release(ctx, ports.SettleRequest{BookingID: "booking-1"})
	require.NoError(t, err)
	assert.Equal(t, prior.ID, txn.ID)
}

// A cached refund must not satisfy a release replay: the settle falls through
// to the state machine, which rejects the second direction.
func TestEscrowService_Release_CachedRefundFallsThrough(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	prior := &domain.Transaction{ID: uuid.New(), Type: domain.TransactionTypeRefund, Amount: 2500}
	cached, _ := json.Marshal(prior)
	hold := heldEscrow(uuid.New())
	hold.State = domain.EscrowStateRefunded

	d.idempCache.EXPECT().Get(ctx, domain.BuildSettleKey("booking-1")).Return(cached, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetForUpdate(ctx, tx, "booking-1").Return(hold, nil)

	txn, err := d.svc.Release(ctx, ports.SettleRequest{BookingID: "booking-1"})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_002")
}

// ==================== Refund ====================

func TestEscrowService_Refund_Success(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := domain.BuildSettleKey("booking-1")
	holdTxID := uuid.New()

	d.idempCache.EXPECT().Get(ctx, key).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetForUpdate(ctx, tx, "booking-1").Return(heldEscrow(holdTxID), nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, "traveler-1", domain.WalletDelta{Pending: -2500}).
		Return(&domain.Wallet{UserID: "traveler-1"}, nil)
	d.walletRepo.EXPECT().GetForUpdate(ctx, tx, "sender-1").Return(&domain.Wallet{
		UserID: "sender-1", Currency: "usd",
	}, nil)
	d.walletRepo.EXPECT().ApplyDelta(ctx, tx, "sender-1", domain.WalletDelta{
		Available: 2500,
		Spent:     -2500,
	}).Return(&domain.Wallet{UserID: "sender-1", AvailableBalance: 2500}, nil)
	d.txRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.txRepo.EXPECT().UpdateStatus(ctx, tx, holdTxID, domain.TransactionStatusCompleted).Return(nil)
	d.escrowRepo.EXPECT().UpdateState(ctx, tx, "booking-1", domain.EscrowStateRefunded, gomock.Any(), gomock.Any()).Return(nil)
	d.idempCache.EXPECT().Set(ctx, key, gomock.Any(), idempotencyTTL).Return(nil)
	d.notifier.EXPECT().RefundIssued(ctx, gomock.Any(), gomock.Any())

	txn, err := d.svc.Refund(ctx, ports.SettleRequest{BookingID: "booking-1", Reason: "trip cancelled"})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionTypeRefund, txn.Type)
	assert.Equal(t, "sender-1", txn.UserID)
	assert.Equal(t, "trip cancelled", txn.Metadata["reason"])
}

func TestEscrowService_Refund_AfterRelease(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	hold := heldEscrow(uuid.New())
	hold.State = domain.EscrowStateReleased

	d.idempCache.EXPECT().Get(ctx, domain.BuildSettleKey("booking-1")).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(tx, nil)
	d.escrowRepo.EXPECT().GetForUpdate(ctx, tx, "booking-1").Return(hold, nil)

	txn, err := d.svc.Refund(ctx, ports.SettleRequest{BookingID: "booking-1"})
	assert.Nil(t, txn)
	assertAppError(t, err, "LED_002")
}

// ==================== StateOf ====================

func TestEscrowService_StateOf(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	hold := heldEscrow(uuid.New())

	d.escrowRepo.EXPECT().Get(ctx, "booking-1").Return(hold, nil)

	state, got, err := d.svc.StateOf(ctx, "booking-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStateHeld, state)
	assert.Equal(t, hold, got)
}

func TestEscrowService_StateOf_None(t *testing.T) {
	d := setupEscrowService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	d.escrowRepo.EXPECT().Get(ctx, "never-held").Return(nil, nil)

	state, hold, err := d.svc.StateOf(ctx, "never-held")
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowStateNone, state)
	assert.Nil(t, hold)
}
