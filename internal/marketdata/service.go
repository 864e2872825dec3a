// Package marketdata turns rate-limited, occasionally-unavailable upstream
// providers into a dependable read surface. It owns the caching policy per
// dataset, the fallback chain for rate-limited batch requests, and the
// per-coin cache consolidation that lets known data survive provider
// outages.
package marketdata

import (
	"context"
	"log/slog"
	"time"

	"cryptodash/internal/alphavantage"
	"cryptodash/internal/cache"
	"cryptodash/internal/market"
)

const (
	// priceTTL bounds freshness for live price datasets
	priceTTL = 60 * time.Second
	// pinnedBatchTTL is the longer freshness window for batches pinned to
	// specific coin ids (wallet views)
	pinnedBatchTTL = 300 * time.Second
	// entityRetention keeps per-coin snapshots long past any batch window
	entityRetention = 30 * 24 * time.Hour
	// freshnessFloor is the age below which a per-coin refresh is redundant
	freshnessFloor = 5 * time.Minute
)

// PrimaryProvider is the batch market-data upstream.
type PrimaryProvider interface {
	Markets(ctx context.Context, vsCurrency string, ids []string, perPage int) ([]market.Coin, error)
	SimplePrice(ctx context.Context, ids, vsCurrencies []string) (map[string]map[string]float64, error)
	OHLC(ctx context.Context, id, vsCurrency string, days int) ([]market.Candle, error)
	MarketChart(ctx context.Context, id, vsCurrency, days, interval string) (market.Chart, error)
	ChartPoints(ctx context.Context, id, vsCurrency, from, to string) ([]market.Point, error)
	Global(ctx context.Context) (market.GlobalStats, error)
	Trending(ctx context.Context) ([]market.TrendingCoin, error)
	Search(ctx context.Context, query string) ([]market.SearchHit, error)
}

// RateProvider is the secondary cross-rate upstream consulted when the
// primary is rate limited.
type RateProvider interface {
	ExchangeRate(ctx context.Context, from, to string) (alphavantage.Rate, error)
}

// HistoryProvider serves deep daily price history beyond the primary
// provider's depth.
type HistoryProvider interface {
	DailyHistory(ctx context.Context, symbol, vsCurrency string) ([]market.Point, error)
}

// Service is the cache-and-fallback orchestrator.
type Service struct {
	cache     *cache.Service
	primary   PrimaryProvider
	secondary RateProvider
	history   HistoryProvider
	log       *slog.Logger
	now       func() time.Time
}

// New wires the orchestrator over a cache engine and the three providers.
func New(c *cache.Service, primary PrimaryProvider, secondary RateProvider, history HistoryProvider, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cache:     c,
		primary:   primary,
		secondary: secondary,
		history:   history,
		log:       log,
		now:       time.Now,
	}
}

// emptyResult is the typed "no data available" answer: callers can render it
// distinctly from stale cached data because the source tag is none.
func emptyResult[T any](s *Service, data T) cache.Result[T] {
	return cache.Result[T]{
		Data: data,
		Meta: cache.Metadata{Source: cache.SourceNone, LastUpdated: s.now()},
	}
}
