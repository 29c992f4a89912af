package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"media_gateway/internal/config"
	"media_gateway/internal/models"
	"media_gateway/internal/storage"
	"media_gateway/internal/utils"
)

// Constructor builds a provider from its configuration
type Constructor func(config ProviderConfig) (Provider, error)

var constructors = map[string]Constructor{
	string(models.ProviderEvolink):   NewEvolinkProvider,
	string(models.ProviderFal):       NewFalProvider,
	string(models.ProviderReplicate): NewReplicateProvider,
	string(models.ProviderKie):       NewKieProvider,
	string(models.ProviderGemini):    NewGeminiProvider,
}

// NewProvider creates a provider instance by name
func NewProvider(config ProviderConfig) (Provider, error) {
	constructor, ok := constructors[config.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, config.Name)
	}
	return constructor(config)
}

// SupportedTypes returns the list of supported provider names
func SupportedTypes() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeConfigs combines credentials stored in the database with those from the
// environment. Environment values win field by field.
func MergeConfigs(env map[string]config.VendorConfig, stored map[string]storage.VendorCredentials, timeout time.Duration, saver MediaSaver) []ProviderConfig {
	configs := make([]ProviderConfig, 0, len(constructors))
	for _, name := range SupportedTypes() {
		cfg := ProviderConfig{Name: name, Timeout: timeout, Saver: saver}
		if creds, ok := stored[name]; ok {
			cfg.APIKey = creds.APIKey
			cfg.BaseURL = creds.BaseURL
		}
		if v, ok := env[name]; ok {
			if v.APIKey != "" {
				cfg.APIKey = v.APIKey
			}
			if v.BaseURL != "" {
				cfg.BaseURL = v.BaseURL
			}
			cfg.CustomStorage = v.CustomStorage
		}
		configs = append(configs, cfg)
	}
	return configs
}

// Registry holds one adapter per configured provider. It is built once at startup.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	logger    *utils.Logger
}

// NewRegistry builds adapters for every config that carries credentials.
// Configs without an API key are skipped; construction failures are logged.
func NewRegistry(configs []ProviderConfig) *Registry {
	r := &Registry{
		providers: make(map[string]Provider),
		logger:    utils.NewLogger("provider-registry"),
	}

	for _, cfg := range configs {
		if cfg.APIKey == "" {
			r.logger.Info("Provider not configured, skipping", "provider", cfg.Name)
			continue
		}
		p, err := NewProvider(cfg)
		if err != nil {
			r.logger.Error("Failed to create provider", "provider", cfg.Name, "error", err)
			continue
		}
		r.providers[cfg.Name] = p
		r.logger.Info("Provider registered", "provider", cfg.Name)
	}
	return r
}

// NewRegistryWith builds a registry over existing adapters
func NewRegistryWith(providers ...Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		logger:    utils.NewLogger("provider-registry"),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get returns the adapter registered under name
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// HasCredentials reports whether a provider is configured with credentials
func (r *Registry) HasCredentials(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names lists the registered providers
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes all providers
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	r.providers = make(map[string]Provider)
	return errors.Join(errs...)
}
