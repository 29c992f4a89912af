package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media_gateway/internal/models"
)

// SubscriptionRepository reads and writes user subscriptions
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetByUser returns the user's subscription, or nil when there is none
func (r *SubscriptionRepository) GetByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	query := `SELECT user_id, status, current_period_end, updated_at FROM subscriptions WHERE user_id = $1`

	if err := r.db.conn.GetContext(ctx, &sub, query, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &sub, nil
}

// HasActive reports whether the user currently holds an active subscription
func (r *SubscriptionRepository) HasActive(ctx context.Context, userID string) (bool, error) {
	sub, err := r.GetByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return sub.IsActive(time.Now()), nil
}

// Upsert stores the subscription state of a user
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	query := `
		INSERT INTO subscriptions (user_id, status, current_period_end, updated_at)
		VALUES (:user_id, :status, :current_period_end, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.conn.NamedExecContext(ctx, query, sub); err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}
