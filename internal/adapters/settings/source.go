// Package settings loads scoring settings from a backing source through a
// short-lived cache and turns them into sla.Snapshot values.
package settings

import (
	"context"
	"sync"
)

// Source stores named setting values.
type Source interface {
	// Get returns the current value of name and whether it is set.
	Get(ctx context.Context, name string) (string, bool, error)
	// Set records a new value for name.
	Set(ctx context.Context, name, value string) error
}

// MemorySource keeps settings in a map. It is used in tests and for demos.
type MemorySource struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySource creates a MemorySource seeded with values.
func NewMemorySource(values map[string]string) *MemorySource {
	m := &MemorySource{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

// Get implements Source.
func (m *MemorySource) Get(_ context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok, nil
}

// Set implements Source.
func (m *MemorySource) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
	return nil
}
