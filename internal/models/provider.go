package models

import "time"

// ProviderType identifies an upstream AI vendor.
type ProviderType string

const (
	ProviderEvolink   ProviderType = "evolink"
	ProviderFal       ProviderType = "fal"
	ProviderReplicate ProviderType = "replicate"
	ProviderKie       ProviderType = "kie"
	ProviderGemini    ProviderType = "gemini"
)

// String returns the string representation of the provider type
func (p ProviderType) String() string {
	return string(p)
}

// IsValid checks if the provider type is supported
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderEvolink, ProviderFal, ProviderReplicate, ProviderKie, ProviderGemini:
		return true
	default:
		return false
	}
}

// AllProviderTypes lists every supported vendor.
func AllProviderTypes() []ProviderType {
	return []ProviderType{ProviderEvolink, ProviderFal, ProviderReplicate, ProviderKie, ProviderGemini}
}

// ProviderCredential is a stored, encrypted credential set for a vendor.
type ProviderCredential struct {
	Name                 string    `db:"name"`
	EncryptedCredentials string    `db:"encrypted_credentials"`
	Enabled              bool      `db:"enabled"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}
