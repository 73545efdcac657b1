// Package memory provides an in-process persistence backend for tests and ephemeral runs.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/actflow/pkg/persistence"
)

// Persistence keeps every value in a map guarded by a RWMutex.
type Persistence struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewPersistence creates an empty in-memory store.
func NewPersistence() *Persistence {
	return &Persistence{values: map[string][]byte{}}
}

func (m *Persistence) Get(_ context.Context, key string) ([]byte, error) {
	err := persistence.ValidateKey(key)
	if err != nil {
		return nil, persistence.NewKeyError("Get", key, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, persistence.NewKeyError("Get", key, persistence.ErrNotFound)
	}

	return slices.Clone(value), nil
}

func (m *Persistence) Set(_ context.Context, key string, value []byte) error {
	err := persistence.ValidateKey(key)
	if err != nil {
		return persistence.NewKeyError("Set", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = slices.Clone(value)

	return nil
}

func (m *Persistence) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0)

	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	slices.Sort(keys)

	return keys, nil
}

func (m *Persistence) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)

	return nil
}

func (m *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (m *Persistence) Close(_ context.Context) error {
	return nil
}
