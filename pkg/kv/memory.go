package kv

import (
	"context"
	"sync"
)

// MemoryStore keeps values in-process. It is the fake used by tests and the
// backend for throwaway CLI sessions.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	closed bool
	hub    *hub
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		hub:    newHub(),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	return m.Apply(ctx, Batch{Set: map[string]string{key: value}})
}

func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	return m.Apply(ctx, Batch{Delete: keys})
}

func (m *MemoryStore) Apply(_ context.Context, b Batch) error {
	if b.empty() {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	for k, v := range b.Set {
		m.values[k] = v
	}
	for _, k := range b.Delete {
		delete(m.values, k)
	}
	m.mu.Unlock()
	m.hub.publish(Change{Keys: b.keys()})
	return nil
}

func (m *MemoryStore) Subscribe() (<-chan Change, func()) {
	return m.hub.subscribe()
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.hub.close()
	return nil
}
