package statestore

import (
	"context"
	"sync"
)

// MemoryStore — хранилище состояния в памяти. Используется в тестах.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory создаёт пустое хранилище в памяти.
func NewMemory() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get реализует Store.
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// SetMany реализует Store.
func (m *MemoryStore) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = v
	}
	return nil
}

// Delete реализует Store.
func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Replace реализует Store.
func (m *MemoryStore) Replace(_ context.Context, set map[string]string, del []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range set {
		m.data[k] = v
	}
	for _, k := range del {
		delete(m.data, k)
	}
	return nil
}

// Ping реализует Store.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Snapshot возвращает копию всех значений.
func (m *MemoryStore) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}
