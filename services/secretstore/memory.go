package secretstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

func NewMemoryStore(secrets map[string]string) *MemoryStore {
	copied := make(map[string]string, len(secrets))
	for name, value := range secrets {
		copied[name] = value
	}
	return &MemoryStore{secrets: copied}
}

func (m *MemoryStore) GetSecret(_ context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.secrets[name]
	if !ok {
		return "", fmt.Errorf("secret %s does not exist", name)
	}
	return value, nil
}

func (m *MemoryStore) PutSecret(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[name] = value
	return nil
}
