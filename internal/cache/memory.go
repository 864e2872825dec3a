package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time // zero means keep forever
}

// Memory is an in-process Store. It is the default backend when no shared
// cache is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the entry for key, or ErrNotFound. Entries past their
// retention are dropped lazily.
func (m *Memory) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	me, found := m.entries[key]
	m.mu.RUnlock()

	if !found {
		return nil, ErrNotFound
	}

	if !me.expiresAt.IsZero() && m.now().After(me.expiresAt) {
		m.mu.Lock()
		// re-check: the key may have been replaced since the read lock
		if cur, ok := m.entries[key]; ok && !cur.expiresAt.IsZero() && m.now().After(cur.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	e := me.entry
	return &e, nil
}

// Put stores a copy of the entry under key.
func (m *Memory) Put(_ context.Context, key string, entry *Entry, retention time.Duration) error {
	me := memoryEntry{entry: *entry}
	if retention > 0 {
		me.expiresAt = m.now().Add(retention)
	}

	m.mu.Lock()
	m.entries[key] = me
	m.mu.Unlock()
	return nil
}

// Delete removes the entry for key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Len reports how many entries are currently held, including ones past
// retention that have not been lazily dropped yet.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
