package inference_engine

import (
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"codeguardian/internal/config"
	apperrors "codeguardian/internal/errors"
	"codeguardian/internal/logging"
	"codeguardian/types"
)

// CredentialLookup resolves the stored credential for a provider.
// An empty string means none is configured.
type CredentialLookup interface {
	Lookup(provider types.ProviderID) string
}

// ProviderRegistry holds provider parameters in priority order. The order is
// fixed at construction; credentials are read live from the lookup.
type ProviderRegistry struct {
	mu          sync.RWMutex
	configs     *orderedmap.OrderedMap[types.ProviderID, types.ProviderConfig]
	credentials CredentialLookup
}

// NewProviderRegistry builds a registry. The slice order is the priority order.
func NewProviderRegistry(configs []types.ProviderConfig, credentials CredentialLookup) *ProviderRegistry {
	om := orderedmap.New[types.ProviderID, types.ProviderConfig]()
	for _, cfg := range configs {
		cfg.Credential = ""
		om.Set(cfg.ID, cfg)
	}
	return &ProviderRegistry{configs: om, credentials: credentials}
}

func (r *ProviderRegistry) credential(id types.ProviderID) string {
	if r.credentials == nil {
		return ""
	}
	return strings.TrimSpace(r.credentials.Lookup(id))
}

// IsAvailable reports whether a non-empty credential is configured for id.
func (r *ProviderRegistry) IsAvailable(id types.ProviderID) bool {
	r.mu.RLock()
	_, known := r.configs.Get(id)
	r.mu.RUnlock()
	return known && r.credential(id) != ""
}

// ListInPriorityOrder returns every provider id, most preferred first.
func (r *ProviderRegistry) ListInPriorityOrder() []types.ProviderID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]types.ProviderID, 0, r.configs.Len())
	for pair := r.configs.Oldest(); pair != nil; pair = pair.Next() {
		ids = append(ids, pair.Key)
	}
	return ids
}

// Get returns the configuration for id with its current credential filled in.
// A missing credential is not an error; an unknown id is.
func (r *ProviderRegistry) Get(id types.ProviderID) (types.ProviderConfig, error) {
	r.mu.RLock()
	cfg, ok := r.configs.Get(id)
	r.mu.RUnlock()
	if !ok {
		return types.ProviderConfig{}, apperrors.NewConfigNotFoundError(string(id))
	}
	cfg.Credential = r.credential(id)
	return cfg, nil
}

// Available returns the available subset, in priority order.
func (r *ProviderRegistry) Available() []types.ProviderID {
	var ids []types.ProviderID
	for _, id := range r.ListInPriorityOrder() {
		if r.credential(id) != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// OnSettingsChanged keeps provider parameters in step with saved settings.
func (r *ProviderRegistry) OnSettingsChanged(_, newSettings *config.Config) {
	if newSettings == nil {
		return
	}
	for _, cfg := range newSettings.ProviderConfigs() {
		r.mu.Lock()
		current, ok := r.configs.Get(cfg.ID)
		if ok {
			current.Endpoint = cfg.Endpoint
			current.Model = cfg.Model
			current.MaxTokens = cfg.MaxTokens
			current.Temperature = cfg.Temperature
			r.configs.Set(cfg.ID, current)
		}
		r.mu.Unlock()
	}
	logging.L_info("🔄 Provider parameters reloaded from settings")
}

var _ config.SettingsChangeListener = (*ProviderRegistry)(nil)
