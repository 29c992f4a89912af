package models

import "time"

// NotificationType values
const (
	NotificationTaskSuccess = "task_success"
	NotificationTaskFailed  = "task_failed"
)

// Notification is a user-facing event created when a task finishes.
type Notification struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"userId"`
	Type      string     `db:"type" json:"type"`
	Title     string     `db:"title" json:"title"`
	Content   *string    `db:"content" json:"content,omitempty"`
	TaskID    *string    `db:"task_id" json:"taskId,omitempty"`
	ReadAt    *time.Time `db:"read_at" json:"readAt"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// IsRead reports whether the user has seen the notification.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}
