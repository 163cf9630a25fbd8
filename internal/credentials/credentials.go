// Package credentials holds the API keys for the AI providers. Keys are
// cached in memory for lookups during dispatch and written through to a
// KeyStore.
package credentials

import (
	"context"
	"strings"
	"sync"

	apperrors "codeguardian/internal/errors"
	"codeguardian/internal/logging"
	"codeguardian/types"
)

// Vault caches provider credentials in front of a KeyStore.
type Vault struct {
	mu    sync.RWMutex
	store KeyStore
	keys  map[types.ProviderID]string
}

// NewVault loads every known provider's key from store.
func NewVault(ctx context.Context, store KeyStore) (*Vault, error) {
	if store == nil {
		store = NewMemoryKeyStore()
	}
	v := &Vault{store: store, keys: make(map[types.ProviderID]string)}

	for _, id := range types.DefaultPriorityOrder {
		key, err := store.Get(ctx, id.CredentialKey())
		if err != nil {
			return nil, err
		}
		if key = strings.TrimSpace(key); key != "" {
			v.keys[id] = key
		}
	}
	logging.L_info("Credentials loaded", "providers", len(v.keys))
	return v, nil
}

// Lookup returns the trimmed credential for a provider, or "".
func (v *Vault) Lookup(id types.ProviderID) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keys[id]
}

// Save stores a credential. Blank values are ignored and reported as not
// saved, so an empty form field never clears an existing key.
func (v *Vault) Save(ctx context.Context, id types.ProviderID, key string) (bool, error) {
	if _, ok := types.ParseProviderID(string(id)); !ok {
		return false, apperrors.NewConfigNotFoundError(string(id))
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Put(ctx, id.CredentialKey(), key); err != nil {
		return false, err
	}
	v.keys[id] = key
	logging.L_info("Credential saved", "provider", id)
	return true, nil
}

// Seed saves keys only for providers that have none yet.
func (v *Vault) Seed(ctx context.Context, keys map[types.ProviderID]string) error {
	for _, id := range types.DefaultPriorityOrder {
		key, ok := keys[id]
		if !ok || v.Lookup(id) != "" {
			continue
		}
		if _, err := v.Save(ctx, id, key); err != nil {
			return err
		}
	}
	return nil
}

// Delete clears a provider's credential.
func (v *Vault) Delete(ctx context.Context, id types.ProviderID) error {
	if _, ok := types.ParseProviderID(string(id)); !ok {
		return apperrors.NewConfigNotFoundError(string(id))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Delete(ctx, id.CredentialKey()); err != nil {
		return err
	}
	delete(v.keys, id)
	logging.L_info("Credential cleared", "provider", id)
	return nil
}

// Masked returns a display form of every provider's credential. Missing
// credentials map to "".
func (v *Vault) Masked() map[types.ProviderID]string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[types.ProviderID]string, len(types.DefaultPriorityOrder))
	for _, id := range types.DefaultPriorityOrder {
		out[id] = Mask(v.keys[id])
	}
	return out
}

// Mask hides all but the last four characters of a key.
func Mask(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 8:
		return "********"
	default:
		return "********" + key[len(key)-4:]
	}
}
