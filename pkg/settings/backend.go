package settings

import (
	"context"
	"sort"
	"sync"
)

// Backend stores raw string values grouped by scope
type Backend interface {
	Get(ctx context.Context, scope, key string) (string, bool, error)
	Put(ctx context.Context, scope, key, value string) error
	Delete(ctx context.Context, scope, key string) error
	Keys(ctx context.Context, scope string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// MemoryBackend keeps settings in process memory
type MemoryBackend struct {
	mu     sync.RWMutex
	scopes map[string]map[string]string
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{scopes: make(map[string]map[string]string)}
}

func (m *MemoryBackend) Get(ctx context.Context, scope, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.scopes[scope][key]
	return v, ok, nil
}

func (m *MemoryBackend) Put(ctx context.Context, scope, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	values, ok := m.scopes[scope]
	if !ok {
		values = make(map[string]string)
		m.scopes[scope] = values
	}
	values[key] = value
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, scope, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.scopes[scope], key)
	return nil
}

func (m *MemoryBackend) Keys(ctx context.Context, scope string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.scopes[scope]))
	for k := range m.scopes[scope] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error { return nil }

func (m *MemoryBackend) Close() error { return nil }
