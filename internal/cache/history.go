package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cryptodash/internal/market"
)

// DateLayout is the day-granularity identity key format for historical
// points.
const DateLayout = "2006-01-02"

// HistoricalProducer fetches dated price points. The from/to range hint is
// derived from what is already cached; both are empty on a cold key and the
// producer should then fetch its full depth.
type HistoricalProducer func(ctx context.Context, from, to string) ([]market.Point, error)

// RememberHistorical maintains an append-only, date-keyed price series under
// key with no expiry. New points merge into the cached series by date;
// already-cached dates are never re-fetched or overwritten, so repeated and
// concurrent calls are idempotent and series coverage only grows. If the
// producer fails but a series is already cached, the cached series is served
// as a soft fallback.
func (s *Service) RememberHistorical(ctx context.Context, key string, produce HistoricalProducer) ([]market.Point, Metadata, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		cached, cachedMeta, haveCached := s.cachedSeries(ctx, key)

		var from, to string
		if haveCached {
			if _, last, ok := market.SeriesBounds(cached); ok {
				next, err := time.Parse(DateLayout, last)
				if err == nil {
					from = next.AddDate(0, 0, 1).Format(DateLayout)
					// Point dates are UTC days, so the upper bound must be too.
					to = s.now().UTC().Format(DateLayout)
				}
			}
			if from != "" && from > to {
				// Series already extends to today, nothing to fetch.
				return servedSeries{cached, cachedMeta}, nil
			}
		}

		fetched, err := produce(ctx, from, to)
		if err != nil {
			if haveCached {
				s.log.Warn("historical producer failed, serving cached series",
					"key", key, "points", len(cached), "error", err)
				return servedSeries{cached, cachedMeta}, nil
			}
			return nil, err
		}

		// Cached dates win: historical prices are immutable once recorded.
		merged := market.MergeSeries(cached, fetched)

		payload, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("encode series for %s: %w", key, err)
		}
		entry := &Entry{Payload: payload, StoredAt: s.now(), Source: SourcePrimary}
		if err := s.store.Put(ctx, key, entry, 0); err != nil {
			return nil, fmt.Errorf("cache write for %s: %w", key, err)
		}

		s.log.Debug("historical series extended",
			"key", key, "cached", len(cached), "fetched", len(fetched), "total", len(merged))
		return servedSeries{merged, Metadata{Source: SourcePrimary, LastUpdated: entry.StoredAt}}, nil
	})
	if err != nil {
		return nil, Metadata{Source: SourceNone}, err
	}

	out := v.(servedSeries)
	return out.points, out.meta, nil
}

type servedSeries struct {
	points []market.Point
	meta   Metadata
}

func (s *Service) cachedSeries(ctx context.Context, key string) ([]market.Point, Metadata, bool) {
	entry, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Warn("historical cache read failed", "key", key, "error", err)
		}
		return nil, Metadata{}, false
	}

	var points []market.Point
	if err := json.Unmarshal(entry.Payload, &points); err != nil {
		s.log.Warn("discarding unreadable historical series", "key", key, "error", err)
		return nil, Metadata{}, false
	}
	return points, entry.metadataAt(s.now(), SourceCache), true
}
