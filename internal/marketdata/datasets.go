package marketdata

import (
	"context"

	"cryptodash/internal/cache"
	"cryptodash/internal/market"
	"cryptodash/internal/provider"
)

// SimplePrice serves spot prices with a short freshness window. A
// rate-limited refresh falls back to the last stored payload for the same
// key instead of erroring.
func (s *Service) SimplePrice(ctx context.Context, ids, vsCurrencies []string) (cache.Result[map[string]map[string]float64], error) {
	key := priceKey(ids, vsCurrencies)

	return cache.RememberAs(ctx, s.cache, key, priceTTL, func(ctx context.Context) (map[string]map[string]float64, cache.Source, error) {
		prices, err := s.primary.SimplePrice(ctx, ids, vsCurrencies)
		if err == nil {
			return prices, cache.SourcePrimary, nil
		}

		if provider.IsRateLimited(err) {
			s.log.Warn("primary rate limited for prices, extending cached data", "key", key)
			stale, serr := cache.StaleAs[map[string]map[string]float64](ctx, s.cache, key)
			if serr == nil {
				return stale.Data, cache.SourceCache, nil
			}
		}

		return nil, cache.SourceNone, err
	})
}

// OHLC serves candle data. There is no fallback chain for this dataset:
// rate limits and transport failures surface as errors.
func (s *Service) OHLC(ctx context.Context, id, vsCurrency string, days int) (cache.Result[[]market.Candle], error) {
	return cache.RememberAs(ctx, s.cache, ohlcKey(id, vsCurrency, days), priceTTL, func(ctx context.Context) ([]market.Candle, cache.Source, error) {
		candles, err := s.primary.OHLC(ctx, id, vsCurrency, days)
		if err != nil {
			return nil, cache.SourceNone, err
		}
		return candles, cache.SourcePrimary, nil
	})
}

// MarketChart serves a coin's time-series arrays. No fallback chain.
func (s *Service) MarketChart(ctx context.Context, id, vsCurrency, days, interval string) (cache.Result[market.Chart], error) {
	return cache.RememberAs(ctx, s.cache, chartKey(id, vsCurrency, days, interval), priceTTL, func(ctx context.Context) (market.Chart, cache.Source, error) {
		chart, err := s.primary.MarketChart(ctx, id, vsCurrency, days, interval)
		if err != nil {
			return market.Chart{}, cache.SourceNone, err
		}
		return chart, cache.SourcePrimary, nil
	})
}

// Trending serves the trending list. The entry has no freshness window; the
// scheduled refresh job replaces it out of band.
func (s *Service) Trending(ctx context.Context) (cache.Result[[]market.TrendingCoin], error) {
	return cache.RememberWithoutFreshnessAs(ctx, s.cache, trendingKey, func(ctx context.Context) ([]market.TrendingCoin, cache.Source, error) {
		coins, err := s.primary.Trending(ctx)
		if err != nil {
			return nil, cache.SourceNone, err
		}
		return coins, cache.SourcePrimary, nil
	})
}

// Global serves aggregate market stats, refreshed out of band like Trending.
func (s *Service) Global(ctx context.Context) (cache.Result[market.GlobalStats], error) {
	return cache.RememberWithoutFreshnessAs(ctx, s.cache, globalKey, func(ctx context.Context) (market.GlobalStats, cache.Source, error) {
		stats, err := s.primary.Global(ctx)
		if err != nil {
			return market.GlobalStats{}, cache.SourceNone, err
		}
		return stats, cache.SourcePrimary, nil
	})
}

// GlobalDirect fetches global stats bypassing the read path and replaces the
// stored entry. Used by the scheduled refresh job.
func (s *Service) GlobalDirect(ctx context.Context) (cache.Result[market.GlobalStats], error) {
	stats, err := s.primary.Global(ctx)
	if err != nil {
		return emptyResult(s, market.GlobalStats{}), err
	}
	if err := s.cache.StoreWithMetadata(ctx, globalKey, stats); err != nil {
		return emptyResult(s, market.GlobalStats{}), err
	}
	return cache.Result[market.GlobalStats]{
		Data: stats,
		Meta: cache.Metadata{Source: cache.SourcePrimary, LastUpdated: s.now()},
	}, nil
}

// TrendingDirect fetches the trending list bypassing the read path and
// replaces the stored entry. Used by the scheduled refresh job.
func (s *Service) TrendingDirect(ctx context.Context) (cache.Result[[]market.TrendingCoin], error) {
	coins, err := s.primary.Trending(ctx)
	if err != nil {
		return emptyResult(s, []market.TrendingCoin(nil)), err
	}
	if err := s.cache.StoreWithMetadata(ctx, trendingKey, coins); err != nil {
		return emptyResult(s, []market.TrendingCoin(nil)), err
	}
	return cache.Result[[]market.TrendingCoin]{
		Data: coins,
		Meta: cache.Metadata{Source: cache.SourcePrimary, LastUpdated: s.now()},
	}, nil
}

// Search looks up coins by name or symbol. Queries under two characters
// short-circuit to an empty result.
func (s *Service) Search(ctx context.Context, query string) (cache.Result[[]market.SearchHit], error) {
	if len(query) < 2 {
		return emptyResult(s, []market.SearchHit(nil)), nil
	}

	return cache.RememberAs(ctx, s.cache, searchKey(query), priceTTL, func(ctx context.Context) ([]market.SearchHit, cache.Source, error) {
		hits, err := s.primary.Search(ctx, query)
		if err != nil {
			return nil, cache.SourceNone, err
		}
		return hits, cache.SourcePrimary, nil
	})
}
