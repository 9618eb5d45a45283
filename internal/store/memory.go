package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process AtomicStore implementation. It is the
// default backend for single-instance deployments and for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string][]byte
	versions map[string]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string][]byte),
		versions: make(map[string]int64),
	}
}

// Save persists data with the given key using copy-on-write semantics.
func (m *MemoryStore) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = cloneBytes(data)
	m.versions[key]++
	return nil
}

// Load retrieves data for the given key.
func (m *MemoryStore) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneBytes(data), nil
}

// Delete removes the data associated with the given key.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		return ErrNotFound
	}
	delete(m.entries, key)
	delete(m.versions, key)
	return nil
}

// List returns all keys matching the given prefix, sorted.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Exists checks if a key exists without loading its data.
func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[key]
	return ok, nil
}

// SaveIfNotExists saves data only if the key does not already exist.
func (m *MemoryStore) SaveIfNotExists(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		return ErrAlreadyExists
	}
	m.entries[key] = cloneBytes(data)
	m.versions[key] = 1
	return nil
}

// SaveWithVersion saves data with optimistic concurrency control.
func (m *MemoryStore) SaveWithVersion(ctx context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.versions[key]
	if current != expectedVersion {
		return 0, ErrStaleData
	}
	m.entries[key] = cloneBytes(data)
	m.versions[key] = current + 1
	return current + 1, nil
}

// LoadWithVersion retrieves data together with its current version.
func (m *MemoryStore) LoadWithVersion(ctx context.Context, key string) ([]byte, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[key]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return cloneBytes(data), m.versions[key], nil
}

func cloneBytes(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
