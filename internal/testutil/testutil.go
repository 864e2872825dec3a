package testutil

import (
	"context"
	"sync"
	"time"

	"cryptodash/internal/cache"
)

// CountingStore wraps a cache.Store and counts operations, for asserting on
// cache traffic in tests.
type CountingStore struct {
	Inner cache.Store

	mu   sync.Mutex
	gets int
	puts int
}

// NewCountingStore wraps an in-memory store.
func NewCountingStore() *CountingStore {
	return &CountingStore{Inner: cache.NewMemory()}
}

// Get implements the cache.Store interface
func (s *CountingStore) Get(ctx context.Context, key string) (*cache.Entry, error) {
	s.mu.Lock()
	s.gets++
	s.mu.Unlock()
	return s.Inner.Get(ctx, key)
}

// Put implements the cache.Store interface
func (s *CountingStore) Put(ctx context.Context, key string, entry *cache.Entry, retention time.Duration) error {
	s.mu.Lock()
	s.puts++
	s.mu.Unlock()
	return s.Inner.Put(ctx, key, entry, retention)
}

// Delete implements the cache.Store interface
func (s *CountingStore) Delete(ctx context.Context, key string) error {
	return s.Inner.Delete(ctx, key)
}

// Gets returns how many reads the store has served.
func (s *CountingStore) Gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets
}

// Puts returns how many writes the store has accepted.
func (s *CountingStore) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// FailingStore returns the given error from every operation, for testing
// that store failures never corrupt caller state.
type FailingStore struct {
	Err error
}

// Get implements the cache.Store interface
func (s *FailingStore) Get(_ context.Context, _ string) (*cache.Entry, error) {
	return nil, s.Err
}

// Put implements the cache.Store interface
func (s *FailingStore) Put(_ context.Context, _ string, _ *cache.Entry, _ time.Duration) error {
	return s.Err
}

// Delete implements the cache.Store interface
func (s *FailingStore) Delete(_ context.Context, _ string) error {
	return s.Err
}
