package service

import (
	"context"
	"strings"
	"sync"

	"github.com/steveiliop56/jellyauth/internal/config"
	"github.com/steveiliop56/jellyauth/internal/model"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"

	"golang.org/x/exp/slices"
)

// OAuthProvider is a stateless authorization code provider. Implementations are safe
// for concurrent use, all per-flow data travels in the arguments.
type OAuthProvider interface {
	ID() string
	Name() string
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (model.TokenResponse, error)
	Identity(ctx context.Context, token model.TokenResponse) (model.OAuthUser, error)
}

type initializer interface {
	Init() error
}

type ProviderStatus struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
}

type providerEntry struct {
	provider  OAuthProvider
	name      string
	enabled   bool
	available bool
}

type OAuthBrokerService struct {
	configs   map[string]config.OAuthServiceConfig
	mutex     sync.RWMutex
	providers map[string]*providerEntry
}

func NewOAuthBrokerService(configs map[string]config.OAuthServiceConfig) *OAuthBrokerService {
	return &OAuthBrokerService{
		configs:   configs,
		providers: make(map[string]*providerEntry),
	}
}

func (broker *OAuthBrokerService) Init() error {
	for id, cfg := range broker.configs {
		id = strings.ToLower(id)

		if cfg.Name == "" {
			if name, ok := config.OverrideProviders[id]; ok {
				cfg.Name = name
			} else {
				cfg.Name = id
			}
		}

		entry := &providerEntry{
			name:    cfg.Name,
			enabled: cfg.Enabled,
		}
		broker.providers[id] = entry

		if !cfg.Enabled {
			tlog.App.Debug().Str("provider", id).Msg("OAuth provider configured but disabled")
			continue
		}

		var provider OAuthProvider

		switch id {
		case "google":
			provider = NewGoogleOAuthService(cfg)
		case "github":
			provider = NewGithubOAuthService(cfg)
		case "apple":
			provider = NewAppleOAuthService(cfg)
		default:
			provider = NewGenericOAuthService(id, cfg)
		}

		entry.provider = provider

		if init, ok := provider.(initializer); ok {
			if err := init.Init(); err != nil {
				tlog.App.Error().Err(err).Str("provider", id).Msg("Failed to initialize OAuth provider, continuing without it")
				continue
			}
		}

		entry.available = true
		tlog.App.Info().Str("provider", id).Msg("Initialized OAuth provider")
	}

	return nil
}

// Register adds or replaces an enabled provider under its own id.
func (broker *OAuthBrokerService) Register(provider OAuthProvider) {
	broker.mutex.Lock()
	defer broker.mutex.Unlock()

	broker.providers[strings.ToLower(provider.ID())] = &providerEntry{
		provider:  provider,
		name:      provider.Name(),
		enabled:   true,
		available: true,
	}
}

// Lookup resolves a provider id case-insensitively. Known providers that are not
// enabled (or failed to start) return ErrProviderDisabled, anything else ErrUnsupportedProvider.
func (broker *OAuthBrokerService) Lookup(id string) (OAuthProvider, error) {
	id = strings.ToLower(strings.TrimSpace(id))

	broker.mutex.RLock()
	entry, exists := broker.providers[id]
	broker.mutex.RUnlock()

	if !exists {
		if _, known := config.OverrideProviders[id]; known {
			return nil, ErrProviderDisabled
		}
		return nil, ErrUnsupportedProvider
	}

	if !entry.enabled || !entry.available {
		return nil, ErrProviderDisabled
	}

	return entry.provider, nil
}

func (broker *OAuthBrokerService) Statuses() []ProviderStatus {
	broker.mutex.RLock()
	defer broker.mutex.RUnlock()

	statuses := make([]ProviderStatus, 0, len(broker.providers))
	for id, entry := range broker.providers {
		statuses = append(statuses, ProviderStatus{
			ID:        id,
			Name:      entry.name,
			Enabled:   entry.enabled,
			Available: entry.available,
		})
	}

	slices.SortFunc(statuses, func(a, b ProviderStatus) int {
		return strings.Compare(a.ID, b.ID)
	})

	return statuses
}

func (broker *OAuthBrokerService) GetConfiguredServices() []string {
	broker.mutex.RLock()
	defer broker.mutex.RUnlock()

	services := make([]string, 0, len(broker.providers))
	for id, entry := range broker.providers {
		if entry.enabled && entry.available {
			services = append(services, id)
		}
	}
	slices.Sort(services)
	return services
}
