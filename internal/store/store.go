package store

import (
	"context"
	"sync"
	"time"
)

// Store caches action responses for storable actions.
type Store interface {
	GetResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetResponse(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteResponse(ctx context.Context, key string) error
}

type entry struct {
	value    []byte
	expireAt time.Time
}

type MemoryStore struct {
	mu        sync.RWMutex
	responses map[string]entry
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		responses: make(map[string]entry),
		now:       time.Now,
	}
}

func (m *MemoryStore) GetResponse(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.responses[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expireAt.IsZero() && !m.now().Before(e.expireAt) {
		m.mu.Lock()
		delete(m.responses, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryStore) SetResponse(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: value}
	if ttl > 0 {
		e.expireAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[key] = e
	return nil
}

func (m *MemoryStore) DeleteResponse(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.responses, key)
	return nil
}
