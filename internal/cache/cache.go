package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by a Store when a key has never been populated.
var ErrNotFound = errors.New("cache entry not found")

// Source tags where a served payload came from.
type Source string

const (
	// SourcePrimary means the payload came from a fresh primary-provider call.
	SourcePrimary Source = "primary"
	// SourceFallback means the payload was assembled by the fallback chain.
	SourceFallback Source = "fallback"
	// SourceCache means the payload was served from a previously stored entry.
	SourceCache Source = "cache"
	// SourceNone means no data was available from any tier.
	SourceNone Source = "none"
)

// Entry is a stored payload with its side-channel metadata. Entries are
// created and overwritten only by the Service; stores never interpret the
// payload.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	StoredAt time.Time       `json:"stored_at"`
	Source   Source          `json:"source"`
}

// Age returns how long ago the entry was stored.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Metadata is the provenance record served alongside every payload so
// callers can render staleness without reaching into cache internals.
type Metadata struct {
	Source      Source    `json:"source"`
	LastUpdated time.Time `json:"lastUpdated"`
	AgeSeconds  int       `json:"cacheAge"`
}

func (e *Entry) metadataAt(now time.Time, source Source) Metadata {
	age := e.Age(now)
	if age < 0 {
		age = 0
	}
	return Metadata{
		Source:      source,
		LastUpdated: e.StoredAt,
		AgeSeconds:  int(age.Seconds()),
	}
}

// Store is a key-value store with per-entry retention. Retention bounds how
// long a store keeps an entry at all; freshness relative to a TTL policy is
// judged by the Service from the entry's StoredAt, never by store eviction,
// so stale entries remain readable for rate-limit recovery.
type Store interface {
	// Get returns the entry for key, or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores an entry. A retention of zero keeps the entry until it is
	// deleted or overwritten.
	Put(ctx context.Context, key string, entry *Entry, retention time.Duration) error

	// Delete removes an entry. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}

// Result pairs a decoded payload with its metadata. Payload and metadata
// always travel together so staleness is observable at every call site.
type Result[T any] struct {
	Data T        `json:"data"`
	Meta Metadata `json:"metadata"`
}
