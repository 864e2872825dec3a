// Package redisstore backs the cache entry store with a shared Redis
// instance so multiple processes see the same entries.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cryptodash/internal/cache"
)

// minRetention keeps freshness-bound entries readable for stale fallback
// long after their TTL window lapses.
const minRetention = 30 * 24 * time.Hour

// Store implements cache.Store over Redis. Entries are stored as a JSON
// envelope so payload and metadata always travel together.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects a store to the Redis instance at addr.
func New(addr, password string, db int) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{client: client, prefix: "cryptodash:"}
}

var _ cache.Store = (*Store)(nil)

// Get returns the entry for key, or cache.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*cache.Entry, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, cache.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var entry cache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", key, err)
	}
	return &entry, nil
}

// Put stores the entry. Retention becomes the Redis key TTL, floored at 30
// days so stale reads survive; zero retention keeps the key until
// overwritten.
func (s *Store) Put(ctx context.Context, key string, entry *cache.Entry, retention time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", key, err)
	}

	if retention > 0 && retention < minRetention {
		retention = minRetention
	}
	if err := s.client.Set(ctx, s.prefix+key, raw, retention).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Ping verifies connectivity; used at startup so a misconfigured address
// fails fast instead of on the first request.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
