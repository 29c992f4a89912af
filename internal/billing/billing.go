package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"media_gateway/internal/models"
	"media_gateway/internal/storage"
	"media_gateway/internal/utils"
)

// ErrInsufficientCredits is returned when a user cannot pay for a task
var ErrInsufficientCredits = storage.ErrInsufficientCredits

// Service charges users for AI tasks.
type Service interface {
	RemainingCredits(ctx context.Context, userID string) (int, error)
	// Debit charges amount for taskID and returns the ledger entry id
	Debit(ctx context.Context, userID string, amount int, taskID string) (string, error)
	// Refund returns the credits of a failed task; repeated calls are no-ops
	Refund(ctx context.Context, req RefundRequest) error
}

// RefundRequest asks for the credits of a task to be returned
type RefundRequest struct {
	UserID      string    `json:"user_id"`
	TaskID      string    `json:"task_id"`
	Amount      int       `json:"amount"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NoopService never charges and reports unlimited credits.
type NoopService struct{}

func NewNoopService() *NoopService {
	return &NoopService{}
}

func (s *NoopService) RemainingCredits(ctx context.Context, userID string) (int, error) {
	return math.MaxInt32, nil
}

func (s *NoopService) Debit(ctx context.Context, userID string, amount int, taskID string) (string, error) {
	return "", nil
}

func (s *NoopService) Refund(ctx context.Context, req RefundRequest) error {
	return nil
}

// ledgerStore is the subset of the credit repository the ledger needs
type ledgerStore interface {
	Balance(ctx context.Context, userID string) (int, error)
	Debit(ctx context.Context, userID string, amount int, taskID string) (*models.CreditTransaction, error)
	Refund(ctx context.Context, userID string, amount int, taskID, reason string) (bool, error)
}

// LedgerService charges users against the Postgres credit ledger
type LedgerService struct {
	store  ledgerStore
	logger *utils.Logger
}

// NewLedgerService creates a ledger-backed billing service
func NewLedgerService(store ledgerStore) *LedgerService {
	return &LedgerService{
		store:  store,
		logger: utils.NewLogger("billing"),
	}
}

// RemainingCredits returns the user's current balance
func (s *LedgerService) RemainingCredits(ctx context.Context, userID string) (int, error) {
	return s.store.Balance(ctx, userID)
}

// Debit charges the user for a task
func (s *LedgerService) Debit(ctx context.Context, userID string, amount int, taskID string) (string, error) {
	if amount <= 0 {
		return "", nil
	}

	entry, err := s.store.Debit(ctx, userID, amount, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientCredits) {
			return "", ErrInsufficientCredits
		}
		return "", fmt.Errorf("debit failed: %w", err)
	}

	s.logger.Debug("Credits debited", "user_id", userID, "task_id", taskID, "amount", amount)
	return entry.ID, nil
}

// Refund returns the credits of a task at most once
func (s *LedgerService) Refund(ctx context.Context, req RefundRequest) error {
	if req.Amount <= 0 {
		return nil
	}

	applied, err := s.store.Refund(ctx, req.UserID, req.Amount, req.TaskID, req.Reason)
	if err != nil {
		return fmt.Errorf("refund failed: %w", err)
	}

	if applied {
		s.logger.Info("Credits refunded", "user_id", req.UserID, "task_id", req.TaskID, "amount", req.Amount)
	} else {
		s.logger.Debug("Refund already applied", "task_id", req.TaskID)
	}
	return nil
}
