// Package modelconfig is the registry of logical models: which provider serves
// each one, under which provider-specific id, and at what credit price.
package modelconfig

import (
	"context"
	"errors"
	"fmt"

	"media_gateway/internal/models"
	"media_gateway/internal/storage"
	"media_gateway/internal/utils"
)

// DefaultCost applies to scenes without a configured price
const DefaultCost = 6

// defaultCosts are the prices used when a model has no price for a scene
var defaultCosts = map[string]int{
	models.SceneTextToVideo:  6,
	models.SceneImageToVideo: 8,
	models.SceneVideoToVideo: 10,
	models.SceneTextToImage:  2,
	models.SceneImageToImage: 4,
	models.SceneTextToMusic:  10,
}

// Store is the persistence the registry needs
type Store interface {
	GetByID(ctx context.Context, id string) (*models.ModelConfig, error)
	List(ctx context.Context, filter storage.ModelConfigFilter) ([]*models.ModelConfig, error)
	UpdateWithTx(ctx context.Context, id string, mutate func(*models.ModelConfig) error) (*models.ModelConfig, error)
}

// CredentialSource reports which providers have usable credentials
type CredentialSource interface {
	HasCredentials(provider string) bool
}

// Service reads and updates model configurations
type Service struct {
	store  Store
	creds  CredentialSource
	logger *utils.Logger
}

// NewService creates a model configuration service
func NewService(store Store, creds CredentialSource) *Service {
	return &Service{
		store:  store,
		creds:  creds,
		logger: utils.NewLogger("model-config"),
	}
}

// Get returns a model config; storage.ErrModelConfigNotFound if absent
func (s *Service) Get(ctx context.Context, id string) (*models.ModelConfig, error) {
	return s.store.GetByID(ctx, id)
}

// ListEnabled returns the public catalogue: enabled and verified, by priority
func (s *Service) ListEnabled(ctx context.Context) ([]*models.ModelConfig, error) {
	return s.store.List(ctx, storage.ModelConfigFilter{EnabledOnly: true, VerifiedOnly: true})
}

// ListAll returns verified configs, or every config when showAll is set
func (s *Service) ListAll(ctx context.Context, showAll bool) ([]*models.ModelConfig, error) {
	return s.store.List(ctx, storage.ModelConfigFilter{VerifiedOnly: !showAll})
}

// Resolve returns the provider-specific model id for cfg on provider:
// the providerModelMap entry, else the legacy providerModelId. The legacy id
// is also returned when provider differs from currentProvider, with a warning.
// An empty result means nothing is configured.
func (s *Service) Resolve(cfg *models.ModelConfig, provider string) string {
	if id := cfg.ProviderModelMap[provider]; id != "" {
		return id
	}
	if cfg.CurrentProvider == provider {
		return cfg.ProviderModelID
	}
	if cfg.ProviderModelID != "" {
		s.logger.Warn("No model mapping for provider, using legacy model id",
			"model", cfg.ID, "provider", provider, "legacy_id", cfg.ProviderModelID)
	}
	return cfg.ProviderModelID
}

// CostFor returns the credit price of running modelID in scene. Missing
// models and unpriced scenes fall back to the default table.
func (s *Service) CostFor(ctx context.Context, modelID, scene string) (int, error) {
	cfg, err := s.store.GetByID(ctx, modelID)
	if err != nil {
		if errors.Is(err, storage.ErrModelConfigNotFound) {
			return CostFromConfig(nil, scene), nil
		}
		return 0, fmt.Errorf("failed to load model config: %w", err)
	}
	return CostFromConfig(cfg, scene), nil
}

// CostFromConfig prices scene on cfg, which may be nil
func CostFromConfig(cfg *models.ModelConfig, scene string) int {
	if cfg != nil {
		if cost, ok := cfg.CreditsCost[scene]; ok && cost > 0 {
			return cost
		}
	}
	if cost, ok := defaultCosts[scene]; ok {
		return cost
	}
	return DefaultCost
}

// UpdateRequest holds the fields of an admin update. Nil fields are left unchanged.
type UpdateRequest struct {
	DisplayName      *string                  `json:"displayName"`
	Description      *string                  `json:"description"`
	CurrentProvider  *string                  `json:"currentProvider"`
	ProviderModelID  *string                  `json:"providerModelId"`
	ProviderModelMap *models.ProviderModelMap `json:"providerModelMap"`
	Enabled          *bool                    `json:"enabled"`
	Verified         *bool                    `json:"verified"`
	SupportedModes   *[]string                `json:"supportedModes"`
	Parameters       *models.ModelParameters  `json:"parameters"`
	CreditsCost      *models.CreditsCost      `json:"creditsCost"`
	Tags             *[]string                `json:"tags"`
	Priority         *int                     `json:"priority"`
}

// Update applies req atomically. The row is locked for the duration, and a
// rejected update leaves it untouched.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*models.ModelConfig, error) {
	if id == "" {
		return nil, &ValidationError{Field: "id", Message: "Model ID is required"}
	}

	updated, err := s.store.UpdateWithTx(ctx, id, func(cfg *models.ModelConfig) error {
		previousProvider := cfg.CurrentProvider
		req.apply(cfg)
		return s.validate(cfg, previousProvider, req)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Model config updated", "model", id, "provider", updated.CurrentProvider,
		"enabled", updated.Enabled, "verified", updated.Verified)
	return updated, nil
}

func (r UpdateRequest) apply(cfg *models.ModelConfig) {
	if r.DisplayName != nil {
		cfg.DisplayName = *r.DisplayName
	}
	if r.Description != nil {
		cfg.Description = *r.Description
	}
	if r.CurrentProvider != nil {
		cfg.CurrentProvider = *r.CurrentProvider
	}
	if r.ProviderModelID != nil {
		cfg.ProviderModelID = *r.ProviderModelID
	}
	if r.ProviderModelMap != nil {
		cfg.ProviderModelMap = *r.ProviderModelMap
	}
	if r.Enabled != nil {
		cfg.Enabled = *r.Enabled
	}
	if r.Verified != nil {
		cfg.Verified = *r.Verified
	}
	if r.SupportedModes != nil {
		cfg.SupportedModes = *r.SupportedModes
	}
	if r.Parameters != nil {
		cfg.Parameters = *r.Parameters
	}
	if r.CreditsCost != nil {
		cfg.CreditsCost = *r.CreditsCost
	}
	if r.Tags != nil {
		cfg.Tags = *r.Tags
	}
	if r.Priority != nil {
		cfg.Priority = *r.Priority
	}
}

// validate checks the mutated config before it is written
func (s *Service) validate(cfg *models.ModelConfig, previousProvider string, req UpdateRequest) error {
	if err := cfg.Validate(); err != nil {
		return &ValidationError{Field: "config", Message: err.Error()}
	}

	if cfg.CurrentProvider != previousProvider {
		if s.creds == nil || !s.creds.HasCredentials(cfg.CurrentProvider) {
			return &ValidationError{
				Field:   "currentProvider",
				Message: fmt.Sprintf("provider %q has no credentials configured", cfg.CurrentProvider),
			}
		}
		// The legacy id belongs to the previous provider unless it was sent with this update
		mapped := cfg.ProviderModelMap[cfg.CurrentProvider] != ""
		supplied := req.ProviderModelID != nil && *req.ProviderModelID != ""
		if !mapped && !supplied {
			return &ValidationError{
				Field:   "providerModelMap",
				Message: fmt.Sprintf("no model id for provider %q; add a providerModelMap entry or send providerModelId", cfg.CurrentProvider),
			}
		}
	}

	if cfg.Listed() && cfg.ProviderModelMap[cfg.CurrentProvider] == "" && cfg.ProviderModelID == "" {
		return &ValidationError{
			Field:   "providerModelId",
			Message: "an enabled and verified model needs a model id for its current provider",
		}
	}
	return nil
}
