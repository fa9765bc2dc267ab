package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sheets in process memory. Stored values are copied so
// callers cannot mutate them in place.
type MemoryStore struct {
	mu     sync.RWMutex
	sheets map[string]Sheet
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sheets: make(map[string]Sheet)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Sheet, error) {
	m.mu.RLock()
	s, ok := m.sheets[id]
	m.mu.RUnlock()
	if !ok || s.IsExpired() {
		return nil, notFound(id)
	}
	s.Objects = append(s.Objects[:0:0], s.Objects...)
	return &s, nil
}

func (m *MemoryStore) Set(_ context.Context, s *Sheet) error {
	cp := *s
	cp.Objects = append(s.Objects[:0:0], s.Objects...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheets[s.ID] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sheets, id)
	return nil
}

func (m *MemoryStore) Cleanup(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, s := range m.sheets {
		if !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt) {
			delete(m.sheets, id)
		}
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Len returns the number of stored sheets, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sheets)
}

var _ Store = (*MemoryStore)(nil)
