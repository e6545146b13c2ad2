package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crowdwave-ledger/internal/core/domain"
	"crowdwave-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const escrowColumns = `booking_id, traveler_id, sender_id, amount, currency, state,
	hold_transaction_id, settle_transaction_id, payment_intent_id, reason, created_at, updated_at`

// EscrowRepo implements ports.EscrowRepository. booking_id is the table's
// primary key, which makes hold creation at-most-once per booking: the second
// concurrent insert hits the unique constraint and rolls back.
type EscrowRepo struct {
	pool Pool
}

// NewEscrowRepo creates a new EscrowRepo.
func NewEscrowRepo(pool Pool) *EscrowRepo {
	return &EscrowRepo{pool: pool}
}

// Create inserts a new escrow hold within a database transaction. Returns
// ports.ErrDuplicateBooking when a hold already exists for the booking.
func (r *EscrowRepo) Create(ctx context.Context, tx pgx.Tx, h *domain.EscrowHold) error {
	query := `INSERT INTO escrow_holds (booking_id, traveler_id, sender_id, amount, currency, state,
		hold_transaction_id, settle_transaction_id, payment_intent_id, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		h.BookingID, h.TravelerID, h.SenderID, h.Amount, h.Currency, h.State,
		h.HoldTransactionID, h.SettleTransactionID, h.PaymentIntentID, h.Reason,
		h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return ports.ErrDuplicateBooking
		}
		return fmt.Errorf("insert escrow hold: %w", err)
	}
	return nil
}

// Get fetches an escrow hold without locking. Returns (nil, nil) when no hold
// exists for the booking.
func (r *EscrowRepo) Get(ctx context.Context, bookingID string) (*domain.EscrowHold, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_holds WHERE booking_id = $1`

	return r.scanHold(r.pool.QueryRow(ctx, query, bookingID))
}

// GetForUpdate fetches an escrow hold with a pessimistic row lock. Settlement
// for a booking serializes on this lock. MUST be called within a transaction.
func (r *EscrowRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (*domain.EscrowHold, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_holds WHERE booking_id = $1 FOR UPDATE`

	return r.scanHold(tx.QueryRow(ctx, query, bookingID))
}

// UpdateState transitions an escrow hold to a new state within a database
// transaction, recording the settling transaction and reason when present.
func (r *EscrowRepo) UpdateState(ctx context.Context, tx pgx.Tx, bookingID string, state domain.EscrowState, settleTxID *uuid.UUID, reason *string) error {
	query := `UPDATE escrow_holds
		SET state = $1, settle_transaction_id = $2, reason = $3, updated_at = $4
		WHERE booking_id = $5`

	tag, err := tx.Exec(ctx, query, state, settleTxID, reason, time.Now(), bookingID)
	if err != nil {
		return fmt.Errorf("update escrow state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("escrow hold not found: %s", bookingID)
	}
	return nil
}

func (r *EscrowRepo) scanHold(row pgx.Row) (*domain.EscrowHold, error) {
	h := &domain.EscrowHold{}
	err := row.Scan(
		&h.BookingID, &h.TravelerID, &h.SenderID, &h.Amount, &h.Currency, &h.State,
		&h.HoldTransactionID, &h.SettleTransactionID, &h.PaymentIntentID, &h.Reason,
		&h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan escrow hold: %w", err)
	}
	return h, nil
}
