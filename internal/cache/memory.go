package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps entries and locks in process memory. It satisfies both
// Store and LockStore and is used by tests and by long-lived servers that do
// not need persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	locks   map[string]Lock
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		locks:   make(map[string]Lock),
	}
}

// Get returns a copy of the entry for key.
func (m *MemoryStore) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	entry.Tickets = copyTickets(entry.Tickets)
	return &entry, nil
}

// Set replaces the entry, copying the ticket slice.
func (m *MemoryStore) Set(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *entry
	stored.Tickets = copyTickets(entry.Tickets)
	m.entries[entry.Key] = stored
	return nil
}

// AcquireLock stores lock unless one with the same name exists.
func (m *MemoryStore) AcquireLock(_ context.Context, lock Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.locks[lock.Name]; held {
		return ErrLockHeld
	}
	m.locks[lock.Name] = lock
	return nil
}

// ReadLock returns the named lock, or nil when absent.
func (m *MemoryStore) ReadLock(_ context.Context, name string) (*Lock, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lock, ok := m.locks[name]
	if !ok {
		return nil, nil
	}
	return &lock, nil
}

// ReleaseLock removes the named lock if owner still holds it.
func (m *MemoryStore) ReleaseLock(_ context.Context, name, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lock, ok := m.locks[name]; ok && lock.Owner == owner {
		delete(m.locks, name)
	}
	return nil
}
