package checkpoint

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory offset store for testing and for consumers
// that only need resume-after-reconnect within one process.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]storedOffset
	closed bool
}

type storedOffset struct {
	offset    int64
	updatedAt time.Time
}

// NewMemoryStore creates a new in-memory offset store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]storedOffset),
	}
}

// Save implements Store.
func (m *MemoryStore) Save(watch string, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	m.data[watch] = storedOffset{offset: offset, updatedAt: time.Now().UTC()}
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(watch string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	so, ok := m.data[watch]
	if !ok {
		return 0, ErrNotFound
	}
	return so.offset, nil
}

// List implements Store.
func (m *MemoryStore) List() ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(m.data))
	for watch, so := range m.data {
		infos = append(infos, Info{Watch: watch, Offset: so.offset, UpdatedAt: so.updatedAt})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Watch < infos[j].Watch })
	return infos, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(watch string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.data, watch)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
