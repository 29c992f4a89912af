package models

import (
	"database/sql/driver"
	"fmt"
	"slices"
	"time"
)

// Scene values, the generation mode a logical model supports.
const (
	SceneTextToVideo  = "text-to-video"
	SceneImageToVideo = "image-to-video"
	SceneVideoToVideo = "video-to-video"
	SceneTextToImage  = "text-to-image"
	SceneImageToImage = "image-to-image"
	SceneTextToMusic  = "text-to-music"
)

// ModelConfig maps a logical model to the provider currently serving it.
type ModelConfig struct {
	ID               string           `db:"id" json:"id"`
	DisplayName      string           `db:"display_name" json:"displayName"`
	Description      string           `db:"description" json:"description"`
	CurrentProvider  string           `db:"current_provider" json:"currentProvider"`
	ProviderModelID  string           `db:"provider_model_id" json:"providerModelId"`
	ProviderModelMap ProviderModelMap `db:"provider_model_map" json:"providerModelMap"`
	Enabled          bool             `db:"enabled" json:"enabled"`
	Verified         bool             `db:"verified" json:"verified"`
	SupportedModes   StringList       `db:"supported_modes" json:"supportedModes"`
	Parameters       ModelParameters  `db:"parameters" json:"parameters"`
	CreditsCost      CreditsCost      `db:"credits_cost" json:"creditsCost"`
	Tags             StringList       `db:"tags" json:"tags"`
	Priority         int              `db:"priority" json:"priority"`
	CreatedAt        time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updatedAt"`
}

// SupportsMode reports whether the model accepts the given scene.
func (m *ModelConfig) SupportsMode(scene string) bool {
	return slices.Contains(m.SupportedModes, scene)
}

// Listed reports whether the model appears in the public catalogue.
func (m *ModelConfig) Listed() bool {
	return m.Enabled && m.Verified
}

// Validate checks structural constraints of a config.
func (m *ModelConfig) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !ProviderType(m.CurrentProvider).IsValid() {
		return fmt.Errorf("unknown provider %q", m.CurrentProvider)
	}
	for provider, id := range m.ProviderModelMap {
		if !ProviderType(provider).IsValid() {
			return fmt.Errorf("providerModelMap: unknown provider %q", provider)
		}
		if id == "" {
			return fmt.Errorf("providerModelMap: empty model id for %q", provider)
		}
	}
	for mode, cost := range m.CreditsCost {
		if cost <= 0 {
			return fmt.Errorf("creditsCost: %q must be positive, got %d", mode, cost)
		}
	}
	if m.Listed() && len(m.SupportedModes) == 0 {
		return fmt.Errorf("an enabled and verified model needs at least one supported mode")
	}
	return nil
}

// ProviderModelMap maps provider name to the provider-specific model id.
type ProviderModelMap map[string]string

func (p ProviderModelMap) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return marshalJSONB(p)
}

func (p *ProviderModelMap) Scan(value any) error {
	*p = nil
	return scanJSONB(value, p)
}

// CreditsCost maps scene to its credit price.
type CreditsCost map[string]int

func (c CreditsCost) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return marshalJSONB(c)
}

func (c *CreditsCost) Scan(value any) error {
	*c = nil
	return scanJSONB(value, c)
}

// StringList is a jsonb array of strings.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return marshalJSONB([]string{})
	}
	return marshalJSONB([]string(s))
}

func (s *StringList) Scan(value any) error {
	*s = nil
	return scanJSONB(value, s)
}

// ModelParameters are advisory UI parameters of a model.
type ModelParameters struct {
	Resolutions  []string `json:"resolutions,omitempty"`
	Durations    []int    `json:"durations,omitempty"`
	AspectRatios []string `json:"aspectRatios,omitempty"`
}

func (p ModelParameters) Value() (driver.Value, error) {
	return marshalJSONB(p)
}

func (p *ModelParameters) Scan(value any) error {
	*p = ModelParameters{}
	return scanJSONB(value, p)
}
