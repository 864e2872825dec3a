package marketdata

import (
	"context"
	"math"

	"cryptodash/internal/cache"
	"cryptodash/internal/market"
)

// minDeepHistory is the point count below which the deep-history provider's
// answer is considered too shallow and the primary provider fills the gap.
const minDeepHistory = 365

// HistoricalChart maintains an append-only daily price series for a coin.
// Already-cached dates are never re-fetched; the producer only covers the
// range the cached series does not.
func (s *Service) HistoricalChart(ctx context.Context, id, vsCurrency, days string) (cache.Result[[]market.Point], error) {
	points, meta, err := s.cache.RememberHistorical(ctx, historicalKey(id, vsCurrency, days), func(ctx context.Context, from, to string) ([]market.Point, error) {
		return s.primary.ChartPoints(ctx, id, vsCurrency, from, to)
	})
	if err != nil {
		return emptyResult(s, []market.Point(nil)), err
	}
	return cache.Result[[]market.Point]{Data: points, Meta: meta}, nil
}

// BitcoinHistory assembles the full bitcoin daily series from two sources
// with source priority: the deep-history provider wins on every date it
// covers, and the primary provider only fills dates it left out. The merged
// series is cached forever and extended incrementally.
func (s *Service) BitcoinHistory(ctx context.Context) (cache.Result[[]market.Point], error) {
	points, meta, err := s.cache.RememberHistorical(ctx, bitcoinKey, func(ctx context.Context, from, to string) ([]market.Point, error) {
		deep, err := s.history.DailyHistory(ctx, "BTC", "usd")
		if err != nil {
			s.log.Warn("deep-history provider failed for bitcoin series", "error", err)
			deep = nil
		} else {
			s.log.Debug("deep-history provider answered", "points", len(deep))
		}

		if len(deep) >= minDeepHistory {
			return deep, nil
		}

		shallow, err := s.primary.ChartPoints(ctx, "bitcoin", "usd", from, to)
		if err != nil {
			if len(deep) == 0 {
				return nil, err
			}
			s.log.Warn("primary chart fill failed, using deep history alone", "error", err)
			return deep, nil
		}

		return market.MergeSeries(deep, shallow), nil
	})
	if err != nil {
		return emptyResult(s, []market.Point(nil)), err
	}
	return cache.Result[[]market.Point]{Data: points, Meta: meta}, nil
}

// Top50Performance enriches the top-50 market snapshot with a 90-day change
// computed from each coin's daily chart. Coins whose chart cannot be
// fetched are skipped rather than failing the whole set. The entry has no
// freshness window; the scheduled refresh job replaces it.
func (s *Service) Top50Performance(ctx context.Context) (cache.Result[[]market.Coin], error) {
	return cache.RememberWithoutFreshnessAs(ctx, s.cache, top50Key, func(ctx context.Context) ([]market.Coin, cache.Source, error) {
		enriched, err := s.computeTop50(ctx)
		if err != nil {
			return nil, cache.SourceNone, err
		}
		return enriched, cache.SourcePrimary, nil
	})
}

// Top50PerformanceDirect recomputes the enriched top-50 set bypassing the
// read path and replaces the stored entry. Used by the scheduled refresh job.
func (s *Service) Top50PerformanceDirect(ctx context.Context) (cache.Result[[]market.Coin], error) {
	enriched, err := s.computeTop50(ctx)
	if err != nil {
		return emptyResult(s, []market.Coin(nil)), err
	}
	if err := s.cache.StoreWithMetadata(ctx, top50Key, enriched); err != nil {
		return emptyResult(s, []market.Coin(nil)), err
	}
	return cache.Result[[]market.Coin]{
		Data: enriched,
		Meta: cache.Metadata{Source: cache.SourcePrimary, LastUpdated: s.now()},
	}, nil
}

func (s *Service) computeTop50(ctx context.Context) ([]market.Coin, error) {
	res, err := s.Markets(ctx, "usd", nil, 50)
	if err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, ErrNoData
	}

	enriched := make([]market.Coin, 0, len(res.Data))
	for _, coin := range res.Data {
		// 91 days so a full 90-day-ago sample exists
		chart, err := s.primary.MarketChart(ctx, coin.ID, "usd", "91", "daily")
		if err != nil || len(chart.Prices) <= 90 {
			s.log.Warn("skipping coin without 90-day chart", "coin", coin.ID, "error", err)
			continue
		}

		first := chart.Prices[0][1]
		last := chart.Prices[len(chart.Prices)-1][1]
		if first <= 0 {
			continue
		}

		change := (last - first) / first * 100
		coin.PriceChangePercentage90dIC = math.Round(change*100) / 100
		enriched = append(enriched, coin)
	}

	return enriched, nil
}
