package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptodash/internal/cache"
	"cryptodash/internal/market"
	"cryptodash/internal/provider"
)

// ErrNoData means every tier of the fallback chain was exhausted.
var ErrNoData = errors.New("no data available from any source")

// IncompleteError reports a fallback aggregate that resolved fewer coins
// than requested. It carries the resolved subset so the caller can still
// serve it, but the engine treats it as a failed produce: an incomplete
// aggregate is never written under the batch's canonical cache key.
type IncompleteError struct {
	Requested []string
	Missing   []string
	Resolved  []market.Coin
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("fallback resolved %d of %d coins (missing: %s)",
		len(e.Resolved), len(e.Requested), strings.Join(e.Missing, ","))
}

// fallbackCoins walks the alternate-source chain for a rate-limited batch:
// per-coin caches first, then cached general market pages for coins that were
// never pinned, then the secondary provider for coins whose cached record has
// no usable price. An id absent from every cache tier cannot have a symbol
// resolved and stays missing; synthesizing placeholders is reserved for the
// single-coin refresh path where the caller supplies identity.
func (s *Service) fallbackCoins(ctx context.Context, vsCurrency string, ids []string) (coins []market.Coin, missing []string) {
	fromPages := s.pageCachedCoins(ctx, vsCurrency, ids)
	for _, id := range ids {
		cached, _, ok := s.cachedCoin(ctx, id)
		if !ok {
			cached, ok = fromPages[id]
		}
		if !ok {
			missing = append(missing, id)
			continue
		}
		if cached.CurrentPrice > 0 {
			coins = append(coins, cached)
			continue
		}

		// Cached record without a price: try to upgrade it through the
		// secondary provider using the cached symbol.
		coin, err := s.secondaryCoin(ctx, id, cached.Symbol, cached.Name, cached.Image)
		if err != nil {
			s.log.Warn("secondary provider fallback failed", "coin", id, "error", err)
			coins = append(coins, cached)
			continue
		}
		s.cacheCoin(ctx, coin, cache.SourceFallback)
		coins = append(coins, coin)
	}
	return coins, missing
}

// pageCachedCoins scans cached general market pages for the requested ids.
// A coin inside a cached page carries a full snapshot even when it was never
// pinned, so it has no per-coin entry of its own.
func (s *Service) pageCachedCoins(ctx context.Context, vsCurrency string, ids []string) map[string]market.Coin {
	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}

	found := make(map[string]market.Coin, len(ids))
	for _, size := range []int{250, 500, 100, 50} {
		res, err := cache.StaleAs[[]market.Coin](ctx, s.cache, marketsKey(vsCurrency, size, nil))
		if err != nil {
			continue
		}
		for _, coin := range res.Data {
			if requested[coin.ID] {
				if _, ok := found[coin.ID]; !ok {
					found[coin.ID] = coin
				}
			}
		}
		if len(found) == len(ids) {
			break
		}
	}
	return found
}

// secondaryCoin fetches a cross rate for symbol and adapts it into the coin
// snapshot shape.
func (s *Service) secondaryCoin(ctx context.Context, id, symbol, name, image string) (market.Coin, error) {
	if symbol == "" {
		return market.Coin{}, provider.NewValidationError("no symbol resolved for " + id)
	}
	rate, err := s.secondary.ExchangeRate(ctx, symbol, "USD")
	if err != nil {
		return market.Coin{}, err
	}
	if name == "" {
		name = id
	}
	return rate.Coin(id, symbol, name, image, s.now().UTC().Format(time.RFC3339)), nil
}

// placeholderCoin synthesizes a record with zeroed numeric fields while
// preserving any previously known values: a known price is never regressed
// to zero.
func (s *Service) placeholderCoin(ctx context.Context, id, symbol, name, image string) market.Coin {
	coin := market.Coin{
		ID:          id,
		Symbol:      strings.ToLower(symbol),
		Name:        name,
		Image:       image,
		LastUpdated: s.now().UTC().Format(time.RFC3339),
	}
	if coin.Image == "" {
		coin.Image = "https://via.placeholder.com/150"
	}

	existing, _, ok := s.cachedCoin(ctx, id)
	if !ok {
		return coin
	}

	coin.CurrentPrice = existing.CurrentPrice
	coin.MarketCap = existing.MarketCap
	coin.MarketCapRank = existing.MarketCapRank
	coin.FullyDilutedValuation = existing.FullyDilutedValuation
	coin.TotalVolume = existing.TotalVolume
	coin.High24h = existing.High24h
	coin.Low24h = existing.Low24h
	coin.PriceChange24h = existing.PriceChange24h
	coin.PriceChangePercentage24h = existing.PriceChangePercentage24h
	coin.MarketCapChange24h = existing.MarketCapChange24h
	coin.MarketCapChangePercentage24h = existing.MarketCapChangePercentage24h
	coin.CirculatingSupply = existing.CirculatingSupply
	coin.TotalSupply = existing.TotalSupply
	coin.MaxSupply = existing.MaxSupply
	coin.ATH = existing.ATH
	coin.ATHChangePercentage = existing.ATHChangePercentage
	coin.ATHDate = existing.ATHDate
	coin.ATL = existing.ATL
	coin.ATLChangePercentage = existing.ATLChangePercentage
	coin.ATLDate = existing.ATLDate
	return coin
}

// RefreshCoin force-refreshes a single coin's snapshot, used when a coin is
// newly pinned to a wallet. Recent data with a usable price short-circuits
// the refresh so racing callers do not burn provider budget. The fallback
// chain runs to its last tier: primary fetch, secondary rate by symbol, then
// a placeholder preserving known values.
func (s *Service) RefreshCoin(ctx context.Context, id, symbol, name, image string) error {
	if existing, meta, ok := s.cachedCoin(ctx, id); ok && existing.CurrentPrice > 0 {
		if age := time.Duration(meta.AgeSeconds) * time.Second; age < freshnessFloor {
			s.log.Info("skipping refresh, recent data on hand",
				"coin", id, "price", existing.CurrentPrice, "age_seconds", meta.AgeSeconds)
			return nil
		}
	}

	key := marketsKey("usd", 250, []string{id})

	coins, err := s.primary.Markets(ctx, "usd", []string{id}, 1)
	if err == nil && len(coins) > 0 {
		if err := s.cache.StoreWithMetadata(ctx, key, coins); err != nil {
			return err
		}
		s.cacheCoin(ctx, coins[0], cache.SourcePrimary)
		s.log.Info("refreshed coin data", "coin", id)
		return nil
	}

	if err != nil && provider.IsRateLimited(err) && symbol != "" {
		s.log.Warn("primary rate limited, trying secondary provider", "coin", id, "symbol", symbol)
		coin, serr := s.secondaryCoin(ctx, id, symbol, name, image)
		if serr == nil {
			if err := s.cache.Store(ctx, key, []market.Coin{coin}, cache.SourceFallback, 0); err != nil {
				return err
			}
			s.cacheCoin(ctx, coin, cache.SourceFallback)
			s.log.Info("refreshed coin data via secondary provider", "coin", id)
			return nil
		}
		s.log.Error("secondary provider refresh failed", "coin", id, "error", serr)
	}

	if symbol != "" && name != "" {
		coin := s.placeholderCoin(ctx, id, symbol, name, image)
		if err := s.cache.Store(ctx, key, []market.Coin{coin}, cache.SourceFallback, 0); err != nil {
			return err
		}
		s.cacheCoin(ctx, coin, cache.SourceFallback)
		s.log.Info("created placeholder coin data",
			"coin", id, "preserved_price", coin.CurrentPrice)
		return nil
	}

	if err == nil {
		err = ErrNoData
	}
	return fmt.Errorf("refresh %s: %w", id, err)
}
