package storage

import (
	"context"
	"fmt"
	"time"

	"media_gateway/internal/models"
)

// NotificationRepository persists user notifications
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (id, user_id, type, title, content, task_id, read_at, created_at)
		VALUES (:id, :user_id, :type, :title, :content, :task_id, :read_at, :created_at)
	`
	if _, err := r.db.conn.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListByUser returns a page of a user's notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error) {
	query := `
		SELECT id, user_id, type, title, content, task_id, read_at, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	notifications := []*models.Notification{}
	if err := r.db.conn.SelectContext(ctx, &notifications, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// CountUnread counts a user's unread notifications
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`
	if err := r.db.conn.GetContext(ctx, &count, query, userID); err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification read. Returns ErrNotificationNotFound when
// the id does not exist for userID.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	query := `
		UPDATE notifications SET read_at = COALESCE(read_at, $1)
		WHERE id = $2 AND user_id = $3
	`
	res, err := r.db.conn.ExecContext(ctx, query, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	ok, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE notifications SET read_at = $1 WHERE user_id = $2 AND read_at IS NULL`
	res, err := r.db.conn.ExecContext(ctx, query, time.Now().UTC(), userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return res.RowsAffected()
}
