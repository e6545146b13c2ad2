package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crowdwave-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ContactRepo implements ports.ContactRepository.
type ContactRepo struct {
	pool Pool
}

// NewContactRepo creates a new ContactRepo.
func NewContactRepo(pool Pool) *ContactRepo {
	return &ContactRepo{pool: pool}
}

// Get fetches a user's notification contact. Returns (nil, nil) when the user
// has never registered a push token or email.
func (r *ContactRepo) Get(ctx context.Context, userID string) (*domain.Contact, error) {
	query := `SELECT user_id, push_token, email, updated_at FROM user_contacts WHERE user_id = $1`

	c := &domain.Contact{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(&c.UserID, &c.PushToken, &c.Email, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// Upsert stores or replaces a user's notification contact.
func (r *ContactRepo) Upsert(ctx context.Context, c *domain.Contact) error {
	query := `INSERT INTO user_contacts (user_id, push_token, email, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET push_token = EXCLUDED.push_token, email = EXCLUDED.email, updated_at = EXCLUDED.updated_at`

	c.UpdatedAt = time.Now()
	_, err := r.pool.Exec(ctx, query, c.UserID, c.PushToken, c.Email, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}
