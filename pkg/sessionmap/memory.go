package sessionmap

import (
	"context"
	"sync"

	"github.com/stacklok/gridcore/pkg/grid"
)

// InMemory is a process-local Map, the default backing store for a
// single embedded distributor.
type InMemory struct {
	mu   sync.RWMutex
	uris map[grid.SessionID]string
}

// NewInMemory builds an empty InMemory session map.
func NewInMemory() *InMemory {
	return &InMemory{uris: make(map[grid.SessionID]string)}
}

// Add implements Map.
func (m *InMemory) Add(_ context.Context, sessionID grid.SessionID, uri string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.uris[sessionID]; exists {
		return newSessionExistsError(sessionID)
	}
	m.uris[sessionID] = uri
	return nil
}

// GetURI implements Map.
func (m *InMemory) GetURI(_ context.Context, sessionID grid.SessionID) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	uri, ok := m.uris[sessionID]
	if !ok {
		return "", newNoSuchSessionError(sessionID)
	}
	return uri, nil
}

// Remove implements Map. Idempotent.
func (m *InMemory) Remove(_ context.Context, sessionID grid.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uris, sessionID)
	return nil
}

// Ready always succeeds: there is no external dependency to probe.
func (m *InMemory) Ready(_ context.Context) error {
	return nil
}

// Len returns the number of bound sessions, for tests and status endpoints.
func (m *InMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.uris)
}
