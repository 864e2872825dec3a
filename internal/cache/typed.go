package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// RememberAs is Remember with a typed producer and a typed result envelope.
func RememberAs[T any](ctx context.Context, s *Service, key string, ttl time.Duration, produce func(context.Context) (T, Source, error)) (Result[T], error) {
	payload, meta, err := s.Remember(ctx, key, ttl, func(ctx context.Context) (any, Source, error) {
		return produce(ctx)
	})
	if err != nil {
		return Result[T]{Meta: meta}, err
	}
	return decode[T](key, payload, meta)
}

// RememberWithoutFreshnessAs is RememberWithoutFreshness with a typed
// producer and result envelope.
func RememberWithoutFreshnessAs[T any](ctx context.Context, s *Service, key string, produce func(context.Context) (T, Source, error)) (Result[T], error) {
	payload, meta, err := s.RememberWithoutFreshness(ctx, key, func(ctx context.Context) (any, Source, error) {
		return produce(ctx)
	})
	if err != nil {
		return Result[T]{Meta: meta}, err
	}
	return decode[T](key, payload, meta)
}

// StaleAs reads the last stored payload for key regardless of age, decoded
// into T.
func StaleAs[T any](ctx context.Context, s *Service, key string) (Result[T], error) {
	payload, meta, err := s.GetStale(ctx, key)
	if err != nil {
		return Result[T]{Meta: meta}, err
	}
	return decode[T](key, payload, meta)
}

func decode[T any](key string, payload json.RawMessage, meta Metadata) (Result[T], error) {
	var data T
	if err := json.Unmarshal(payload, &data); err != nil {
		return Result[T]{Meta: Metadata{Source: SourceNone}}, fmt.Errorf("decode payload for %s: %w", key, err)
	}
	return Result[T]{Data: data, Meta: meta}, nil
}
