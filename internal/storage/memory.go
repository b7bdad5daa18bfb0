package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps cursor positions in process memory. Positions are lost on
// restart, so a watcher backed by it starts from the beginning of the log.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{positions: make(map[string]int64)}
}

func (m *MemoryStore) Load(_ context.Context, name string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	since, ok := m.positions[name]
	return since, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, name string, since int64) error {
	m.mu.Lock()
	m.positions[name] = since
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
