package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// The in-memory store emulates the database's concurrency behavior with one
// global transaction lock: Begin acquires it, Commit/Rollback release it, and
// repo reads outside a transaction also take it briefly. Writers therefore
// serialize the same way FOR UPDATE row locks serialize them in PostgreSQL,
// and non-transactional reads never observe a half-applied transition.
type inMemoryDB struct {
	txMu sync.Mutex
}

// --- Transactor ---

type inMemoryTransactor struct {
	db *inMemoryDB
}

func newInMemoryTransactor(db *inMemoryDB) *inMemoryTransactor {
	return &inMemoryTransactor{db: db}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.db.txMu.Lock()
	return &memTx{db: t.db}, nil
}

// memTx is a pgx.Tx that only tracks the global lock. Writes applied during
// the transaction are not reverted on rollback; service paths roll back
// before mutating, which keeps this simplification safe.
type memTx struct {
	db   *inMemoryDB
	done atomic.Bool
}

func (t *memTx) release() {
	if t.done.CompareAndSwap(false, true) {
		t.db.txMu.Unlock()
	}
}

func (t *memTx) Commit(ctx context.Context) error   { t.release(); return nil }
func (t *memTx) Rollback(ctx context.Context) error { t.release(); return nil }

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *memTx) Conn() *pgx.Conn                                              { return nil }

// --- Wallet Repo ---

type inMemoryWalletRepo struct {
	db      *inMemoryDB
	mu      sync.RWMutex
	wallets map[string]*domain.Wallet
}

func newInMemoryWalletRepo(db *inMemoryDB) *inMemoryWalletRepo {
	return &inMemoryWalletRepo{db: db, wallets: make(map[string]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) Create(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.wallets[w.UserID]; ok {
		return nil
	}
	cp := *w
	r.wallets[w.UserID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()
	return r.get(userID), nil
}

func (r *inMemoryWalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID string) (*domain.Wallet, error) {
	return r.get(userID), nil
}

func (r *inMemoryWalletRepo) get(userID string) *domain.Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil
	}
	cp := *w
	return &cp
}

func (r *inMemoryWalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, userID string, d domain.WalletDelta) (*domain.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		return nil, fmt.Errorf("wallet not found for user %s", userID)
	}
	if w.AvailableBalance+d.Available < 0 || w.PendingBalance+d.Pending < 0 {
		return nil, ports.ErrInsufficientBalance
	}
	w.AvailableBalance += d.Available
	w.PendingBalance += d.Pending
	w.TotalEarnings += d.Earnings
	w.TotalSpent += d.Spent
	if w.TotalSpent < 0 {
		w.TotalSpent = 0
	}
	w.TotalWithdrawals += d.Withdrawals
	w.UpdatedAt = time.Now()
	cp := *w
	return &cp, nil
}

// --- Transaction Repo ---

type inMemoryTransactionRepo struct {
	db           *inMemoryDB
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.Transaction
}

func newInMemoryTransactionRepo(db *inMemoryDB) *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{db: db, transactions: make(map[uuid.UUID]*domain.Transaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transactions[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *inMemoryTransactionRepo) GetByBookingAndType(ctx context.Context, bookingID string, txType domain.TransactionType) (*domain.Transaction, error) {
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.Transaction
	for _, t := range r.transactions {
		if t.BookingID != bookingID || t.Type != txType {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *inMemoryTransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	t.Status = status
	now := time.Now()
	t.ProcessedAt = &now
	return nil
}

func (r *inMemoryTransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Transaction
	for _, t := range r.transactions {
		if t.UserID != params.UserID {
			continue
		}
		if params.BookingID != nil && t.BookingID != *params.BookingID {
			continue
		}
		if params.Type != nil && t.Type != *params.Type {
			continue
		}
		if params.Status != nil && t.Status != *params.Status {
			continue
		}
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryTransactionRepo) GetStats(ctx context.Context, userID string) (*ports.WalletStats, error) {
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := &ports.WalletStats{}
	for _, t := range r.transactions {
		if t.UserID != userID {
			continue
		}
		stats.TotalTransactions++
		if t.Status != domain.TransactionStatusCompleted {
			continue
		}
		switch t.Type {
		case domain.TransactionTypeHold:
			stats.TotalHeld += t.Amount
		case domain.TransactionTypeRelease, domain.TransactionTypeEarning:
			stats.TotalReleased += t.Amount
		case domain.TransactionTypeRefund:
			stats.TotalRefunded += t.Amount
		case domain.TransactionTypeDeposit:
			stats.TotalDeposited += t.Amount
		case domain.TransactionTypeWithdrawal:
			stats.TotalWithdrawn += t.Amount
		}
	}
	return stats, nil
}

// --- Escrow Repo ---

type inMemoryEscrowRepo struct {
	db    *inMemoryDB
	mu    sync.RWMutex
	holds map[string]*domain.EscrowHold
}

func newInMemoryEscrowRepo(db *inMemoryDB) *inMemoryEscrowRepo {
	return &inMemoryEscrowRepo{db: db, holds: make(map[string]*domain.EscrowHold)}
}

func (r *inMemoryEscrowRepo) Create(ctx context.Context, tx pgx.Tx, hold *domain.EscrowHold) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.holds[hold.BookingID]; ok {
		return ports.ErrDuplicateBooking
	}
	cp := *hold
	r.holds[hold.BookingID] = &cp
	return nil
}

func (r *inMemoryEscrowRepo) Get(ctx context.Context, bookingID string) (*domain.EscrowHold, error) {
	r.db.txMu.Lock()
	defer r.db.txMu.Unlock()
	return r.get(bookingID), nil
}

func (r *inMemoryEscrowRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (*domain.EscrowHold, error) {
	return r.get(bookingID), nil
}

func (r *inMemoryEscrowRepo) get(bookingID string) *domain.EscrowHold {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.holds[bookingID]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

func (r *inMemoryEscrowRepo) UpdateState(ctx context.Context, tx pgx.Tx, bookingID string, state domain.EscrowState, settleTxID *uuid.UUID, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.holds[bookingID]
	if !ok {
		return fmt.Errorf("escrow hold not found for booking %s", bookingID)
	}
	h.State = state
	h.SettleTransactionID = settleTxID
	h.Reason = reason
	h.UpdatedAt = time.Now()
	return nil
}

// --- Contact Repo ---

type inMemoryContactRepo struct {
	mu       sync.RWMutex
	contacts map[string]*domain.Contact
}

func newInMemoryContactRepo() *inMemoryContactRepo {
	return &inMemoryContactRepo{contacts: make(map[string]*domain.Contact)}
}

func (r *inMemoryContactRepo) Get(ctx context.Context, userID string) (*domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contacts[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *inMemoryContactRepo) Upsert(ctx context.Context, c *domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.UpdatedAt = time.Now()
	cp := *c
	r.contacts[c.UserID] = &cp
	return nil
}
