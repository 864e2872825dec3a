package marketdata

import (
	"context"

	"cryptodash/internal/cache"
	"cryptodash/internal/market"
)

// consolidate decomposes a batch result into individually-keyed per-coin
// snapshots with a long fixed retention, decoupled from the batch's own
// freshness window. This is what lets a single rate-limited moment keep
// serving coins it did not cover.
func (s *Service) consolidate(ctx context.Context, coins []market.Coin, source cache.Source) {
	for _, coin := range coins {
		s.cacheCoin(ctx, coin, source)
	}
}

func (s *Service) cacheCoin(ctx context.Context, coin market.Coin, source cache.Source) {
	if coin.ID == "" {
		return
	}
	if err := s.cache.Store(ctx, coinKey(coin.ID), coin, source, entityRetention); err != nil {
		s.log.Warn("per-coin cache write failed", "coin", coin.ID, "error", err)
		return
	}
	s.log.Debug("cached per-coin snapshot", "coin", coin.ID)
}

// cachedCoin reads a per-coin snapshot regardless of age.
func (s *Service) cachedCoin(ctx context.Context, id string) (market.Coin, cache.Metadata, bool) {
	res, err := cache.StaleAs[market.Coin](ctx, s.cache, coinKey(id))
	if err != nil || res.Data.ID == "" {
		return market.Coin{}, cache.Metadata{}, false
	}
	return res.Data, res.Meta, true
}

// coinsFromCache reconstructs a batch-shaped result from per-coin snapshots,
// reporting which ids were found and which are missing.
func (s *Service) coinsFromCache(ctx context.Context, ids []string) (found []market.Coin, missing []string) {
	for _, id := range ids {
		if coin, _, ok := s.cachedCoin(ctx, id); ok {
			found = append(found, coin)
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing
}
