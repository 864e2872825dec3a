package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultRetention bounds how long a freshness-bound entry is kept for stale
// reads after its TTL lapses.
const DefaultRetention = 30 * 24 * time.Hour

// Producer performs the actual upstream fetch for a cache key and reports
// the source of the value it produced. A producer that recovered via a
// fallback chain returns SourceFallback so provenance survives the cache.
type Producer func(ctx context.Context) (value any, source Source, err error)

// Service is the cache-aside engine. It is the only writer to the Store
// besides explicit out-of-band refresh jobs using StoreWithMetadata, and it
// guarantees at most one in-flight producer per key.
type Service struct {
	store Store
	group singleflight.Group
	log   *slog.Logger
	now   func() time.Time
}

// NewService creates an engine over the given store.
func NewService(store Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// served is what a completed flight hands to every waiting caller.
type served struct {
	payload json.RawMessage
	meta    Metadata
}

// Remember serves the cached payload while its age is below ttl, otherwise
// invokes the producer and stores the result. A producer failure propagates
// to the caller and leaves any existing entry untouched; stale recovery is
// the producer's own job, composed out of GetStale and the fallback chain.
func (s *Service) Remember(ctx context.Context, key string, ttl time.Duration, produce Producer) (json.RawMessage, Metadata, error) {
	if entry, err := s.store.Get(ctx, key); err == nil {
		if entry.Age(s.now()) < ttl {
			return entry.Payload, entry.metadataAt(s.now(), SourceCache), nil
		}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, Metadata{Source: SourceNone}, fmt.Errorf("cache read for %s: %w", key, err)
	}

	return s.fly(ctx, key, func(entry *Entry) bool {
		return entry.Age(s.now()) < ttl
	}, DefaultRetention, produce)
}

// RememberWithoutFreshness serves any cached value regardless of age and
// only invokes the producer on a true miss. Staleness for these keys is
// governed by an external refresh job, not request-time TTL.
func (s *Service) RememberWithoutFreshness(ctx context.Context, key string, produce Producer) (json.RawMessage, Metadata, error) {
	if entry, err := s.store.Get(ctx, key); err == nil {
		return entry.Payload, entry.metadataAt(s.now(), SourceCache), nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, Metadata{Source: SourceNone}, fmt.Errorf("cache read for %s: %w", key, err)
	}

	return s.fly(ctx, key, func(*Entry) bool { return true }, 0, produce)
}

// fly runs the producer under singleflight for key. Concurrent callers for
// the same cold key share one producer invocation and one result. fresh
// decides whether an entry written while this caller was waiting to enter
// the flight can be served instead of producing again.
func (s *Service) fly(ctx context.Context, key string, fresh func(*Entry) bool, retention time.Duration, produce Producer) (json.RawMessage, Metadata, error) {
	v, err, shared := s.group.Do(key, func() (any, error) {
		// Re-check under the flight: a previous flight may have populated
		// the key between this caller's miss and entering Do.
		if entry, err := s.store.Get(ctx, key); err == nil && fresh(entry) {
			return served{entry.Payload, entry.metadataAt(s.now(), SourceCache)}, nil
		}

		value, source, err := produce(ctx)
		if err != nil {
			return nil, err
		}

		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode payload for %s: %w", key, err)
		}

		entry := &Entry{Payload: payload, StoredAt: s.now(), Source: source}
		if err := s.store.Put(ctx, key, entry, retention); err != nil {
			return nil, fmt.Errorf("cache write for %s: %w", key, err)
		}

		s.log.Debug("cache entry refreshed", "key", key, "source", source)
		return served{payload, Metadata{Source: source, LastUpdated: entry.StoredAt}}, nil
	})
	if err != nil {
		return nil, Metadata{Source: SourceNone}, err
	}
	if shared {
		s.log.Debug("shared in-flight result", "key", key)
	}

	out := v.(served)
	return out.payload, out.meta, nil
}

// GetStale returns the last stored payload for key irrespective of age.
// Callers use it explicitly for rate-limit recovery. Returns ErrNotFound if
// the key was never populated.
func (s *Service) GetStale(ctx context.Context, key string) (json.RawMessage, Metadata, error) {
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, Metadata{Source: SourceNone}, err
	}
	return entry.Payload, entry.metadataAt(s.now(), SourceCache), nil
}

// Store writes a value unconditionally with an explicit source tag and
// retention bound.
func (s *Service) Store(ctx context.Context, key string, value any, source Source, retention time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", key, err)
	}
	entry := &Entry{Payload: payload, StoredAt: s.now(), Source: source}
	if err := s.store.Put(ctx, key, entry, retention); err != nil {
		return fmt.Errorf("cache write for %s: %w", key, err)
	}
	return nil
}

// StoreWithMetadata is the out-of-band write path used by scheduled refresh
// jobs that bypass the read-through policies entirely.
func (s *Service) StoreWithMetadata(ctx context.Context, key string, value any) error {
	return s.Store(ctx, key, value, SourcePrimary, 0)
}

// Delete removes a key. Used by maintenance paths only.
func (s *Service) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, key)
}
