package geocache

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fire-incidents/pkg/geocode"
)

// MemoryStore is a process-local Store. It is the default when no database
// is configured and backs most tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]geocode.Coordinates
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{entries: make(map[string]geocode.Coordinates)}
}

// Get implements geocode.Cache.
func (m *MemoryStore) Get(_ context.Context, key string) (geocode.Coordinates, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.entries[key]
	return c, ok, nil
}

// Put implements geocode.Cache. An existing entry is left untouched.
func (m *MemoryStore) Put(_ context.Context, key string, c geocode.Coordinates) error {
	if !c.Valid() {
		return eris.Errorf("memory: refusing invalid coordinates for %q", key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		m.entries[key] = c
	}
	return nil
}

// Len returns the number of cached addresses.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Migrate is a no-op for the in-memory store.
func (m *MemoryStore) Migrate(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
