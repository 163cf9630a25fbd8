package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"codeguardian/internal/logging"
)

const collectionName = "credentials"

// KeyStore persists raw credentials under their storage key
// ("<provider>_api_key"). Get returns "" for a missing key.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MemoryKeyStore keeps credentials for the life of the process.
type MemoryKeyStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{values: make(map[string]string)}
}

func (m *MemoryKeyStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemoryKeyStore) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryKeyStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// ChromemKeyStore stores one document per credential in a chromem
// collection. With a persistent DB the keys survive restarts.
type ChromemKeyStore struct {
	mu         sync.Mutex
	collection *chromem.Collection
}

// NewChromemKeyStore opens (or creates) the credentials collection.
func NewChromemKeyStore(db *chromem.DB) (*ChromemKeyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database not available")
	}
	collection, err := db.GetOrCreateCollection(collectionName, map[string]string{"type": "credential"}, EmbeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("failed to get or create %s collection: %w", collectionName, err)
	}
	logging.L_debug("Credential collection ready", "documents", collection.Count())
	return &ChromemKeyStore{collection: collection}, nil
}

func (s *ChromemKeyStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.collection.GetByID(ctx, key)
	if err != nil {
		// GetByID reports a missing document as an error.
		if strings.Contains(err.Error(), "not found") {
			return "", nil
		}
		return "", fmt.Errorf("failed to read credential %s: %w", key, err)
	}
	return doc.Content, nil
}

func (s *ChromemKeyStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec, err := localEmbedding(value)
	if err != nil {
		return err
	}
	metadata := map[string]string{
		"key":        key,
		"type":       "credential",
		"updated_at": time.Now().Format(time.RFC3339),
	}
	if err := s.collection.Add(ctx, []string{key}, [][]float32{vec}, []map[string]string{metadata}, []string{value}); err != nil {
		return fmt.Errorf("failed to persist credential %s: %w", key, err)
	}
	return nil
}

func (s *ChromemKeyStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.collection.GetByID(ctx, key); err != nil {
		return nil
	}
	if err := s.collection.Delete(ctx, nil, nil, key); err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", key, err)
	}
	return nil
}
