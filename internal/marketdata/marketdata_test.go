package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"cryptodash/internal/alphavantage"
	"cryptodash/internal/cache"
	"cryptodash/internal/market"
	"cryptodash/internal/provider"
)

// fakePrimary implements PrimaryProvider with per-method function fields and
// call counters. Methods without a configured function report an unexpected
// call.
type fakePrimary struct {
	marketsFn     func(ctx context.Context, vsCurrency string, ids []string, perPage int) ([]market.Coin, error)
	simplePriceFn func(ctx context.Context, ids, vsCurrencies []string) (map[string]map[string]float64, error)
	ohlcFn        func(ctx context.Context, id, vsCurrency string, days int) ([]market.Candle, error)
	marketChartFn func(ctx context.Context, id, vsCurrency, days, interval string) (market.Chart, error)
	chartPointsFn func(ctx context.Context, id, vsCurrency, from, to string) ([]market.Point, error)
	globalFn      func(ctx context.Context) (market.GlobalStats, error)
	trendingFn    func(ctx context.Context) ([]market.TrendingCoin, error)
	searchFn      func(ctx context.Context, query string) ([]market.SearchHit, error)

	marketsCalls     atomic.Int64
	simplePriceCalls atomic.Int64
	chartPointsCalls atomic.Int64
}

var errUnexpectedCall = errors.New("unexpected provider call")

func (f *fakePrimary) Markets(ctx context.Context, vsCurrency string, ids []string, perPage int) ([]market.Coin, error) {
	f.marketsCalls.Add(1)
	if f.marketsFn == nil {
		return nil, errUnexpectedCall
	}
	return f.marketsFn(ctx, vsCurrency, ids, perPage)
}

func (f *fakePrimary) SimplePrice(ctx context.Context, ids, vsCurrencies []string) (map[string]map[string]float64, error) {
	f.simplePriceCalls.Add(1)
	if f.simplePriceFn == nil {
		return nil, errUnexpectedCall
	}
	return f.simplePriceFn(ctx, ids, vsCurrencies)
}

func (f *fakePrimary) OHLC(ctx context.Context, id, vsCurrency string, days int) ([]market.Candle, error) {
	if f.ohlcFn == nil {
		return nil, errUnexpectedCall
	}
	return f.ohlcFn(ctx, id, vsCurrency, days)
}

func (f *fakePrimary) MarketChart(ctx context.Context, id, vsCurrency, days, interval string) (market.Chart, error) {
	if f.marketChartFn == nil {
		return market.Chart{}, errUnexpectedCall
	}
	return f.marketChartFn(ctx, id, vsCurrency, days, interval)
}

func (f *fakePrimary) ChartPoints(ctx context.Context, id, vsCurrency, from, to string) ([]market.Point, error) {
	f.chartPointsCalls.Add(1)
	if f.chartPointsFn == nil {
		return nil, errUnexpectedCall
	}
	return f.chartPointsFn(ctx, id, vsCurrency, from, to)
}

func (f *fakePrimary) Global(ctx context.Context) (market.GlobalStats, error) {
	if f.globalFn == nil {
		return market.GlobalStats{}, errUnexpectedCall
	}
	return f.globalFn(ctx)
}

func (f *fakePrimary) Trending(ctx context.Context) ([]market.TrendingCoin, error) {
	if f.trendingFn == nil {
		return nil, errUnexpectedCall
	}
	return f.trendingFn(ctx)
}

func (f *fakePrimary) Search(ctx context.Context, query string) ([]market.SearchHit, error) {
	if f.searchFn == nil {
		return nil, errUnexpectedCall
	}
	return f.searchFn(ctx, query)
}

// fakeSecondary implements RateProvider.
type fakeSecondary struct {
	rateFn func(ctx context.Context, from, to string) (alphavantage.Rate, error)
	calls  atomic.Int64
}

func (f *fakeSecondary) ExchangeRate(ctx context.Context, from, to string) (alphavantage.Rate, error) {
	f.calls.Add(1)
	if f.rateFn == nil {
		return alphavantage.Rate{}, errUnexpectedCall
	}
	return f.rateFn(ctx, from, to)
}

// fakeHistory implements HistoryProvider.
type fakeHistory struct {
	dailyFn func(ctx context.Context, symbol, vsCurrency string) ([]market.Point, error)
	calls   atomic.Int64
}

func (f *fakeHistory) DailyHistory(ctx context.Context, symbol, vsCurrency string) ([]market.Point, error) {
	f.calls.Add(1)
	if f.dailyFn == nil {
		return nil, errUnexpectedCall
	}
	return f.dailyFn(ctx, symbol, vsCurrency)
}

type testEnv struct {
	svc       *Service
	store     cache.Store
	engine    *cache.Service
	primary   *fakePrimary
	secondary *fakeSecondary
	history   *fakeHistory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, cache.NewMemory())
}

func newTestEnvWithStore(t *testing.T, store cache.Store) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := cache.NewService(store, log)
	primary := &fakePrimary{}
	secondary := &fakeSecondary{}
	history := &fakeHistory{}
	return &testEnv{
		svc:       New(engine, primary, secondary, history, log),
		store:     store,
		engine:    engine,
		primary:   primary,
		secondary: secondary,
		history:   history,
	}
}

// seedCoin writes a per-coin snapshot with the given age directly into the
// store, bypassing the engine's clock.
func (e *testEnv) seedCoin(t *testing.T, coin market.Coin, age time.Duration) {
	t.Helper()
	e.seedEntry(t, coinKey(coin.ID), coin, age, cache.SourcePrimary)
}

func (e *testEnv) seedEntry(t *testing.T, key string, value any, age time.Duration, source cache.Source) {
	t.Helper()
	payload, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal seed value: %v", err)
	}
	entry := &cache.Entry{Payload: payload, StoredAt: time.Now().Add(-age), Source: source}
	if err := e.store.Put(context.Background(), key, entry, 0); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

// storedEntry reads the raw store entry, failing the test on a miss.
func (e *testEnv) storedEntry(t *testing.T, key string) *cache.Entry {
	t.Helper()
	entry, err := e.store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("store read for %s: %v", key, err)
	}
	return entry
}

func rateLimited() error {
	return provider.NewRateLimitError(http.StatusTooManyRequests)
}

func testCoin(id, symbol string, price float64) market.Coin {
	return market.Coin{
		ID:           id,
		Symbol:       symbol,
		Name:         id,
		CurrentPrice: price,
		MarketCap:    price * 1000,
	}
}
