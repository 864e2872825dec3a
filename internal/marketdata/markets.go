package marketdata

import (
	"context"
	"errors"

	"cryptodash/internal/cache"
	"cryptodash/internal/market"
	"cryptodash/internal/provider"
)

// Markets serves the batch market snapshot through the read-through cache.
// A pinned batch is cached under its canonical key only when every requested
// id resolved: CoinGecko silently omits unknown or delisted ids, so a short
// primary answer is topped up from per-coin caches first, and if ids remain
// missing the resolved subset is returned without touching the canonical key.
// On a rate-limited refresh the fallback chain rebuilds the batch from caches
// and the secondary provider under the same completeness rule.
func (s *Service) Markets(ctx context.Context, vsCurrency string, ids []string, perPage int) (cache.Result[[]market.Coin], error) {
	key := marketsKey(vsCurrency, perPage, ids)
	ttl := priceTTL
	if len(ids) > 0 {
		ttl = pinnedBatchTTL
	}

	res, err := cache.RememberAs(ctx, s.cache, key, ttl, func(ctx context.Context) ([]market.Coin, cache.Source, error) {
		coins, err := s.primary.Markets(ctx, vsCurrency, ids, perPage)
		if err == nil {
			if len(ids) > 0 {
				s.consolidate(ctx, coins, cache.SourcePrimary)
				if len(missingIDs(ids, coins)) > 0 {
					coins = s.fillFromCache(ctx, ids, coins)
				}
				if missing := missingIDs(ids, coins); len(missing) > 0 {
					return nil, cache.SourceNone, &IncompleteError{Requested: ids, Missing: missing, Resolved: coins}
				}
			}
			return coins, cache.SourcePrimary, nil
		}

		if provider.IsRateLimited(err) && len(ids) > 0 {
			s.log.Warn("primary rate limited, rebuilding batch from fallback chain", "key", key)
			coins, missing := s.fallbackCoins(ctx, vsCurrency, ids)
			if len(coins) > 0 && len(missing) == 0 {
				return coins, cache.SourceFallback, nil
			}
			if len(coins) > 0 {
				return nil, cache.SourceNone, &IncompleteError{Requested: ids, Missing: missing, Resolved: coins}
			}
		}

		return nil, cache.SourceNone, err
	})
	if err != nil {
		var inc *IncompleteError
		if errors.As(err, &inc) {
			s.log.Warn("serving incomplete fallback batch without caching",
				"key", key, "missing", inc.Missing)
			return cache.Result[[]market.Coin]{
				Data: inc.Resolved,
				Meta: cache.Metadata{Source: cache.SourceFallback, LastUpdated: s.now()},
			}, nil
		}
		return res, err
	}
	return res, nil
}

// MarketsFromCache is the cache-only read used by overview rendering: it
// never calls a provider, and when the exact page size was never cached it
// slices a larger cached page down to size.
func (s *Service) MarketsFromCache(ctx context.Context, vsCurrency string, ids []string, perPage int) (cache.Result[[]market.Coin], error) {
	res, err := cache.StaleAs[[]market.Coin](ctx, s.cache, marketsKey(vsCurrency, perPage, ids))
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return emptyResult(s, []market.Coin(nil)), err
	}

	if len(ids) == 0 {
		for _, size := range []int{250, 500, 100, 50} {
			if size == perPage {
				continue
			}
			res, err := cache.StaleAs[[]market.Coin](ctx, s.cache, marketsKey(vsCurrency, size, nil))
			if err != nil || len(res.Data) == 0 {
				continue
			}
			if len(res.Data) > perPage {
				res.Data = res.Data[:perPage]
			}
			s.log.Debug("sliced larger cached page for market overview",
				"requested", perPage, "cached_size", size)
			return res, nil
		}
	}

	return emptyResult(s, []market.Coin(nil)), nil
}

// WalletCoins serves pinned coins from cache only: the general batch cache
// first, then per-coin snapshots for anything it did not cover. Stale prices
// beat no prices for wallet display.
func (s *Service) WalletCoins(ctx context.Context, vsCurrency string, ids []string, perPage int) (cache.Result[[]market.Coin], error) {
	if len(ids) == 0 {
		return emptyResult(s, []market.Coin(nil)), nil
	}

	byID := make(map[string]market.Coin, len(ids))
	if res, err := cache.StaleAs[[]market.Coin](ctx, s.cache, marketsKey(vsCurrency, perPage, nil)); err == nil {
		requested := make(map[string]bool, len(ids))
		for _, id := range ids {
			requested[id] = true
		}
		for _, coin := range res.Data {
			if requested[coin.ID] {
				byID[coin.ID] = coin
			}
		}
	}

	coins := make([]market.Coin, 0, len(ids))
	for _, id := range ids {
		if coin, ok := byID[id]; ok {
			coins = append(coins, coin)
			continue
		}
		if coin, _, ok := s.cachedCoin(ctx, id); ok {
			coins = append(coins, coin)
		}
	}

	if len(coins) == 0 {
		return emptyResult(s, []market.Coin(nil)), nil
	}
	return cache.Result[[]market.Coin]{
		Data: coins,
		Meta: cache.Metadata{Source: cache.SourceCache, LastUpdated: s.now()},
	}, nil
}

// FetchFreshMarkets bypasses the read-through path and fetches directly,
// feeding the canonical batch key and the per-coin caches. It is the write
// path for the scheduled wallet refresh job.
func (s *Service) FetchFreshMarkets(ctx context.Context, vsCurrency string, ids []string, perPage int) (cache.Result[[]market.Coin], error) {
	key := marketsKey(vsCurrency, perPage, ids)

	coins, err := s.primary.Markets(ctx, vsCurrency, ids, perPage)
	if err == nil {
		if len(ids) > 0 {
			s.consolidate(ctx, coins, cache.SourcePrimary)
			if len(missingIDs(ids, coins)) > 0 {
				coins = s.fillFromCache(ctx, ids, coins)
			}
			if missing := missingIDs(ids, coins); len(missing) > 0 {
				s.log.Warn("primary returned partial batch, canonical key left untouched",
					"key", key, "missing", missing)
				return cache.Result[[]market.Coin]{
					Data: coins,
					Meta: cache.Metadata{Source: cache.SourcePrimary, LastUpdated: s.now()},
				}, nil
			}
		}
		if err := s.cache.StoreWithMetadata(ctx, key, coins); err != nil {
			return emptyResult(s, []market.Coin(nil)), err
		}
		s.log.Info("fetched fresh market data", "key", key, "coins", len(coins))
		return cache.Result[[]market.Coin]{
			Data: coins,
			Meta: cache.Metadata{Source: cache.SourcePrimary, LastUpdated: s.now()},
		}, nil
	}

	if provider.IsRateLimited(err) && len(ids) > 0 {
		s.log.Warn("primary rate limited during fresh fetch, walking fallback chain", "key", key)
		coins, missing := s.fallbackCoins(ctx, vsCurrency, ids)
		if len(coins) == 0 {
			return emptyResult(s, []market.Coin(nil)), err
		}
		if len(missing) == 0 {
			if err := s.cache.Store(ctx, key, coins, cache.SourceFallback, 0); err != nil {
				return emptyResult(s, []market.Coin(nil)), err
			}
		} else {
			s.log.Warn("fallback produced partial batch, canonical key left untouched",
				"key", key, "missing", missing)
		}
		return cache.Result[[]market.Coin]{
			Data: coins,
			Meta: cache.Metadata{Source: cache.SourceFallback, LastUpdated: s.now()},
		}, nil
	}

	return emptyResult(s, []market.Coin(nil)), err
}

// SpecificCoins fetches full market data for exactly the given ids, feeding
// per-coin caches and preserving cached data for ids the provider omitted
// (for example coins outside the top pages). No batch key is written, so a
// partial answer can never masquerade as a complete one.
func (s *Service) SpecificCoins(ctx context.Context, ids []string, vsCurrency string) (cache.Result[[]market.Coin], error) {
	coins, err := s.primary.Markets(ctx, vsCurrency, ids, 250)
	if err == nil {
		for _, coin := range coins {
			s.cacheCoin(ctx, coin, cache.SourcePrimary)
		}
		coins = s.fillFromCache(ctx, ids, coins)
		return cache.Result[[]market.Coin]{
			Data: coins,
			Meta: cache.Metadata{Source: cache.SourcePrimary, LastUpdated: s.now()},
		}, nil
	}

	if provider.IsRateLimited(err) {
		s.log.Warn("primary rate limited for specific coins, walking fallback chain", "ids", ids)
		coins, _ := s.fallbackCoins(ctx, vsCurrency, ids)
		if len(coins) > 0 {
			return cache.Result[[]market.Coin]{
				Data: coins,
				Meta: cache.Metadata{Source: cache.SourceFallback, LastUpdated: s.now()},
			}, nil
		}
	}

	// Last resort: whatever the per-coin caches still hold.
	cached, _ := s.coinsFromCache(ctx, ids)
	if len(cached) > 0 {
		s.log.Info("serving cached coins after provider failure", "found", len(cached))
		return cache.Result[[]market.Coin]{
			Data: cached,
			Meta: cache.Metadata{Source: cache.SourceCache, LastUpdated: s.now()},
		}, nil
	}

	return emptyResult(s, []market.Coin(nil)), err
}

// fillFromCache appends cached snapshots for requested ids absent from a
// provider answer, so a coin dropping out of the provider's coverage does
// not erase it from the caller's view.
func (s *Service) fillFromCache(ctx context.Context, ids []string, coins []market.Coin) []market.Coin {
	for _, id := range missingIDs(ids, coins) {
		if coin, _, ok := s.cachedCoin(ctx, id); ok {
			coins = append(coins, coin)
			s.log.Info("preserved cached snapshot for coin missing from response", "coin", id)
		} else {
			s.log.Warn("no data available for requested coin", "coin", id)
		}
	}
	return coins
}

// missingIDs reports requested ids absent from a batch answer.
func missingIDs(ids []string, coins []market.Coin) []string {
	got := make(map[string]bool, len(coins))
	for _, coin := range coins {
		got[coin.ID] = true
	}
	var missing []string
	for _, id := range ids {
		if !got[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
