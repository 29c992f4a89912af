package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"media_gateway/internal/models"
)

const modelConfigColumns = `
	id, display_name, description, current_provider, provider_model_id,
	provider_model_map, enabled, verified, supported_modes, parameters,
	credits_cost, tags, priority, created_at, updated_at`

// ModelConfigRepository handles model config database operations with caching
type ModelConfigRepository struct {
	db    *DB
	cache *expirable.LRU[string, *models.ModelConfig]
}

// NewModelConfigRepository creates a new model config repository
func NewModelConfigRepository(db *DB) *ModelConfigRepository {
	return &ModelConfigRepository{
		db:    db,
		cache: db.modelConfigCache,
	}
}

// GetByID retrieves a model config by id (with caching).
// The returned value is shared with the cache and must not be mutated.
func (r *ModelConfigRepository) GetByID(ctx context.Context, id string) (*models.ModelConfig, error) {
	if cached, ok := r.cache.Get(id); ok {
		return cached, nil
	}

	var cfg models.ModelConfig
	query := `SELECT ` + modelConfigColumns + ` FROM model_configs WHERE id = $1`

	err := r.db.conn.GetContext(ctx, &cfg, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModelConfigNotFound
		}
		return nil, fmt.Errorf("failed to get model config: %w", err)
	}

	r.cache.Add(id, &cfg)
	return &cfg, nil
}

// ModelConfigFilter selects which configs List returns
type ModelConfigFilter struct {
	EnabledOnly  bool
	VerifiedOnly bool
}

// List returns model configs ordered by priority, highest first
func (r *ModelConfigRepository) List(ctx context.Context, filter ModelConfigFilter) ([]*models.ModelConfig, error) {
	var where []string
	if filter.EnabledOnly {
		where = append(where, "enabled = true")
	}
	if filter.VerifiedOnly {
		where = append(where, "verified = true")
	}

	query := `SELECT ` + modelConfigColumns + ` FROM model_configs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority DESC, id"

	var configs []*models.ModelConfig
	if err := r.db.conn.SelectContext(ctx, &configs, query); err != nil {
		return nil, fmt.Errorf("failed to list model configs: %w", err)
	}

	return configs, nil
}

// Upsert inserts a config or overwrites the existing row with the same id
func (r *ModelConfigRepository) Upsert(ctx context.Context, cfg *models.ModelConfig) error {
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	query := `
		INSERT INTO model_configs (` + modelConfigColumns + `)
		VALUES (
			:id, :display_name, :description, :current_provider, :provider_model_id,
			:provider_model_map, :enabled, :verified, :supported_modes, :parameters,
			:credits_cost, :tags, :priority, :created_at, :updated_at
		)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			current_provider = EXCLUDED.current_provider,
			provider_model_id = EXCLUDED.provider_model_id,
			provider_model_map = EXCLUDED.provider_model_map,
			enabled = EXCLUDED.enabled,
			verified = EXCLUDED.verified,
			supported_modes = EXCLUDED.supported_modes,
			parameters = EXCLUDED.parameters,
			credits_cost = EXCLUDED.credits_cost,
			tags = EXCLUDED.tags,
			priority = EXCLUDED.priority,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.conn.NamedExecContext(ctx, query, cfg); err != nil {
		return fmt.Errorf("failed to upsert model config: %w", err)
	}

	r.InvalidateCache(cfg.ID)
	return nil
}

// UpdateWithTx locks the row, applies mutate to a copy and writes it back in one
// transaction. If mutate returns an error nothing is written.
func (r *ModelConfigRepository) UpdateWithTx(ctx context.Context, id string, mutate func(*models.ModelConfig) error) (*models.ModelConfig, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var cfg models.ModelConfig
	query := `SELECT ` + modelConfigColumns + ` FROM model_configs WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &cfg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModelConfigNotFound
		}
		return nil, fmt.Errorf("failed to lock model config: %w", err)
	}

	if err := mutate(&cfg); err != nil {
		return nil, err
	}
	cfg.ID = id
	cfg.UpdatedAt = time.Now().UTC()

	update := `
		UPDATE model_configs SET
			display_name = :display_name,
			description = :description,
			current_provider = :current_provider,
			provider_model_id = :provider_model_id,
			provider_model_map = :provider_model_map,
			enabled = :enabled,
			verified = :verified,
			supported_modes = :supported_modes,
			parameters = :parameters,
			credits_cost = :credits_cost,
			tags = :tags,
			priority = :priority,
			updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := tx.NamedExecContext(ctx, update, &cfg); err != nil {
		return nil, fmt.Errorf("failed to update model config: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit model config update: %w", err)
	}

	r.InvalidateCache(id)
	return &cfg, nil
}

// InvalidateCache removes a model config from the cache
func (r *ModelConfigRepository) InvalidateCache(id string) {
	r.cache.Remove(id)
}
