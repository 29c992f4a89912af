package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media_gateway/internal/models"
	"media_gateway/internal/utils"
)

// ProviderRepository stores encrypted vendor credentials
type ProviderRepository struct {
	db     *DB
	enc    *Encryption
	logger *utils.Logger
}

// NewProviderRepository creates a new provider credential repository.
// enc may be nil, in which case stored credentials are ignored.
func NewProviderRepository(db *DB, enc *Encryption) *ProviderRepository {
	return &ProviderRepository{
		db:     db,
		enc:    enc,
		logger: utils.NewLogger("provider-repository"),
	}
}

// GetByName retrieves the stored credential row of a provider
func (r *ProviderRepository) GetByName(ctx context.Context, name string) (*models.ProviderCredential, error) {
	var cred models.ProviderCredential
	query := `
		SELECT name, encrypted_credentials, enabled, created_at, updated_at
		FROM provider_credentials
		WHERE name = $1
	`

	if err := r.db.conn.GetContext(ctx, &cred, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return &cred, nil
}

// List returns all stored provider credential rows
func (r *ProviderRepository) List(ctx context.Context) ([]*models.ProviderCredential, error) {
	query := `
		SELECT name, encrypted_credentials, enabled, created_at, updated_at
		FROM provider_credentials
		ORDER BY name
	`

	var creds []*models.ProviderCredential
	if err := r.db.conn.SelectContext(ctx, &creds, query); err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return creds, nil
}

// Save encrypts and stores credentials for a provider
func (r *ProviderRepository) Save(ctx context.Context, name string, creds VendorCredentials, enabled bool) error {
	if r.enc == nil {
		return fmt.Errorf("no encryption key configured")
	}
	sealed, err := r.enc.SealCredentials(creds)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO provider_credentials (name, encrypted_credentials, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (name) DO UPDATE SET
			encrypted_credentials = EXCLUDED.encrypted_credentials,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.conn.ExecContext(ctx, query, name, sealed, enabled, now); err != nil {
		return fmt.Errorf("failed to save provider credentials: %w", err)
	}
	return nil
}

// LoadCredentials decrypts every enabled stored credential, keyed by provider
// name. Rows that fail to decrypt are skipped with an error log.
func (r *ProviderRepository) LoadCredentials(ctx context.Context) (map[string]VendorCredentials, error) {
	out := make(map[string]VendorCredentials)
	if r.enc == nil {
		return out, nil
	}

	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if !row.Enabled {
			continue
		}
		creds, err := r.enc.OpenCredentials(row.EncryptedCredentials)
		if err != nil {
			r.logger.Error("Failed to decrypt provider credentials", "provider", row.Name, "error", err)
			continue
		}
		out[row.Name] = creds
	}
	return out, nil
}
