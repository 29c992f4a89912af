package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"media_gateway/internal/models"
)

// CreditRepository is the append-only credit ledger
type CreditRepository struct {
	db *DB
}

// NewCreditRepository creates a new credit ledger repository
func NewCreditRepository(db *DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// Balance returns the sum of all ledger entries of a user
func (r *CreditRepository) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	query := `SELECT COALESCE(SUM(delta), 0) FROM credit_transactions WHERE user_id = $1`
	if err := r.db.conn.GetContext(ctx, &balance, query, userID); err != nil {
		return 0, fmt.Errorf("failed to read credit balance: %w", err)
	}
	return balance, nil
}

// Grant adds credits to a user
func (r *CreditRepository) Grant(ctx context.Context, userID string, amount int, description string) (*models.CreditTransaction, error) {
	entry := &models.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Delta:       amount,
		Kind:        models.CreditKindGrant,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.insert(ctx, r.db.conn, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit removes amount credits from the user for taskID. Concurrent debits of
// the same user are serialized by an advisory lock so the balance never goes
// negative.
func (r *CreditRepository) Debit(ctx context.Context, userID string, amount int, taskID string) (*models.CreditTransaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("debit amount must be positive, got %d", amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return nil, fmt.Errorf("failed to lock credit balance: %w", err)
	}

	var balance int
	if err := tx.GetContext(ctx, &balance, `SELECT COALESCE(SUM(delta), 0) FROM credit_transactions WHERE user_id = $1`, userID); err != nil {
		return nil, fmt.Errorf("failed to read credit balance: %w", err)
	}
	if balance < amount {
		return nil, ErrInsufficientCredits
	}

	entry := &models.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Delta:       -amount,
		Kind:        models.CreditKindDebit,
		TaskID:      &taskID,
		Description: "ai task " + taskID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := r.insert(ctx, tx, entry); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit debit: %w", err)
	}
	return entry, nil
}

// Refund returns amount credits for taskID. A task is refunded at most once;
// the second call reports applied=false.
func (r *CreditRepository) Refund(ctx context.Context, userID string, amount int, taskID, reason string) (bool, error) {
	query := `
		INSERT INTO credit_transactions (id, user_id, delta, kind, task_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (task_id, kind) WHERE task_id IS NOT NULL DO NOTHING
	`
	res, err := r.db.conn.ExecContext(ctx, query,
		uuid.NewString(), userID, amount, models.CreditKindRefund, taskID, reason, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to refund credits: %w", err)
	}
	return rowsAffected(res)
}

func (r *CreditRepository) insert(ctx context.Context, ex sqlx.ExtContext, entry *models.CreditTransaction) error {
	query := `
		INSERT INTO credit_transactions (id, user_id, delta, kind, task_id, description, created_at)
		VALUES (:id, :user_id, :delta, :kind, :task_id, :description, :created_at)
	`
	if _, err := sqlx.NamedExecContext(ctx, ex, query, entry); err != nil {
		return fmt.Errorf("failed to write credit entry: %w", err)
	}
	return nil
}
