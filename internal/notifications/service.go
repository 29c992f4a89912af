// Package notifications records user-facing events when tasks finish.
package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

const (
	DefaultPage  = 1
	DefaultLimit = 30
	MaxLimit     = 100
)

// Store is the persistence the sink needs
type Store interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Page is one page of a user's notifications
type Page struct {
	Notifications []*models.Notification `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
}

// Service writes and reads notifications
type Service struct {
	store  Store
	logger *utils.Logger
}

// NewService creates a notification service
func NewService(store Store) *Service {
	return &Service{store: store, logger: utils.NewLogger("notifications")}
}

// Create records a notification for userID
func (s *Service) Create(ctx context.Context, userID, kind, title, content, taskID string) (*models.Notification, error) {
	n := &models.Notification{
		ID:     uuid.NewString(),
		UserID: userID,
		Type:   kind,
		Title:  title,
	}
	if content != "" {
		n.Content = &content
	}
	if taskID != "" {
		n.TaskID = &taskID
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, err
	}
	s.logger.Debug("Notification created", "user_id", userID, "type", kind, "task_id", taskID)
	return n, nil
}

// List returns a page of notifications and the unread count.
// page defaults to 1 and limit to 30.
func (s *Service) List(ctx context.Context, userID string, page, limit int) (*Page, error) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	items, err := s.store.ListByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	unread, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Page{Notifications: items, UnreadCount: unread}, nil
}

// UnreadCount returns how many notifications userID has not read
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

// MarkRead marks one notification read
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	return s.store.MarkRead(ctx, id, userID)
}

// MarkAllRead marks every notification of userID read
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	n, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return fmt.Errorf("mark all read: %w", err)
	}
	s.logger.Debug("Notifications marked read", "user_id", userID, "count", n)
	return nil
}
