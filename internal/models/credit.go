package models

import "time"

// CreditKind classifies a ledger entry.
type CreditKind string

const (
	CreditKindGrant  CreditKind = "grant"
	CreditKindDebit  CreditKind = "debit"
	CreditKindRefund CreditKind = "refund"
)

// CreditTransaction is one append-only ledger entry. A user's balance is the
// sum of Delta over all their entries.
type CreditTransaction struct {
	ID          string     `db:"id" json:"id"`
	UserID      string     `db:"user_id" json:"userId"`
	Delta       int        `db:"delta" json:"delta"`
	Kind        CreditKind `db:"kind" json:"kind"`
	TaskID      *string    `db:"task_id" json:"taskId,omitempty"`
	Description string     `db:"description" json:"description"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// SubscriptionStatusActive marks a paying subscriber.
const SubscriptionStatusActive = "active"

// Subscription is the current plan of a user.
type Subscription struct {
	UserID           string     `db:"user_id" json:"userId"`
	Status           string     `db:"status" json:"status"`
	CurrentPeriodEnd *time.Time `db:"current_period_end" json:"currentPeriodEnd,omitempty"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsActive reports whether the subscription grants the paid tier.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil || s.Status != SubscriptionStatusActive {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}
