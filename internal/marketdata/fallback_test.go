package marketdata

import (
	"context"
	"testing"
	"time"

	"cryptodash/internal/alphavantage"
	"cryptodash/internal/cache"
	"cryptodash/internal/market"
)

func TestRefreshCoin_FreshnessFloorSkipsFetch(t *testing.T) {
	env := newTestEnv(t)
	env.seedCoin(t, testCoin("bitcoin", "btc", 50000), time.Minute)

	if err := env.svc.RefreshCoin(context.Background(), "bitcoin", "btc", "Bitcoin", ""); err != nil {
		t.Fatalf("RefreshCoin() error: %v", err)
	}
	if calls := env.primary.marketsCalls.Load(); calls != 0 {
		t.Errorf("primary calls = %d, want 0 within the freshness floor", calls)
	}
	if calls := env.secondary.calls.Load(); calls != 0 {
		t.Errorf("secondary calls = %d, want 0", calls)
	}
}

func TestRefreshCoin_ZeroPriceNeverShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	// Recent but priceless: the floor only honors usable data.
	env.seedCoin(t, testCoin("bitcoin", "btc", 0), time.Minute)
	env.primary.marketsFn = func(ctx context.Context, vs string, ids []string, perPage int) ([]market.Coin, error) {
		return []market.Coin{testCoin("bitcoin", "btc", 50000)}, nil
	}

	if err := env.svc.RefreshCoin(context.Background(), "bitcoin", "btc", "Bitcoin", ""); err != nil {
		t.Fatalf("RefreshCoin() error: %v", err)
	}
	if calls := env.primary.marketsCalls.Load(); calls != 1 {
		t.Errorf("primary calls = %d, want 1", calls)
	}
}

func TestRefreshCoin_StaleEntryRefetches(t *testing.T) {
	env := newTestEnv(t)
	env.seedCoin(t, testCoin("bitcoin", "btc", 48000), 10*time.Minute)
	env.primary.marketsFn = func(ctx context.Context, vs string, ids []string, perPage int) ([]market.Coin, error) {
		return []market.Coin{testCoin("bitcoin", "btc", 50000)}, nil
	}

	if err := env.svc.RefreshCoin(context.Background(), "bitcoin", "btc", "Bitcoin", ""); err != nil {
		t.Fatalf("RefreshCoin() error: %v", err)
	}

	coin, _, ok := env.svc.cachedCoin(context.Background(), "bitcoin")
	if !ok || coin.CurrentPrice != 50000 {
		t.Errorf("snapshot = %+v, want refreshed price", coin)
	}
	entry := env.storedEntry(t, marketsKey("usd", 250, []string{"bitcoin"}))
	if entry.Source != cache.SourcePrimary {
		t.Errorf("single-coin batch source = %q, want primary", entry.Source)
	}
}

func TestRefreshCoin_SecondaryOnRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.primary.marketsFn = func(ctx context.Context, vs string, ids []string, perPage int) ([]market.Coin, error) {
		return nil, rateLimited()
	}
	env.secondary.rateFn = func(ctx context.Context, from, to string) (alphavantage.Rate, error) {
		if from != "btc" && from != "BTC" {
			t.Errorf("secondary from = %q", from)
		}
		return alphavantage.Rate{FromSymbol: "BTC", ToSymbol: "USD", Price: 49500}, nil
	}

	if err := env.svc.RefreshCoin(context.Background(), "bitcoin", "btc", "Bitcoin", ""); err != nil {
		t.Fatalf("RefreshCoin() error: %v", err)
	}

	coin, _, ok := env.svc.cachedCoin(context.Background(), "bitcoin")
	if !ok || coin.CurrentPrice != 49500 {
		t.Errorf("snapshot = %+v, want secondary price", coin)
	}
	entry := env.storedEntry(t, coinKey("bitcoin"))
	if entry.Source != cache.SourceFallback {
		t.Errorf("snapshot source = %q, want fallback provenance", entry.Source)
	}
}

func TestRefreshCoin_PlaceholderPreservesKnownValues(t *testing.T) {
	env := newTestEnv(t)
	known := testCoin("bitcoin", "btc", 42000)
	known.TotalVolume = 9e9
	maxSupply := 21e6
	known.MaxSupply = &maxSupply
	known.ATH = 69000
	env.seedCoin(t, known, 10*time.Minute)

	env.primary.marketsFn = func(ctx context.Context, vs string, ids []string, perPage int) ([]market.Coin, error) {
		return nil, rateLimited()
	}
	env.secondary.rateFn = func(ctx context.Context, from, to string) (alphavantage.Rate, error) {
		return alphavantage.Rate{}, rateLimited()
	}

	if err := env.svc.RefreshCoin(context.Background(), "bitcoin", "btc", "Bitcoin", ""); err != nil {
		t.Fatalf("RefreshCoin() error: %v", err)
	}

	coin, _, ok := env.svc.cachedCoin(context.Background(), "bitcoin")
	if !ok {
		t.Fatal("snapshot missing after placeholder refresh")
	}
	if coin.CurrentPrice != 42000 {
		t.Errorf("CurrentPrice = %v, want known price preserved", coin.CurrentPrice)
	}
	if coin.TotalVolume != 9e9 {
		t.Errorf("TotalVolume = %v, want preserved", coin.TotalVolume)
	}
	if coin.MaxSupply == nil || *coin.MaxSupply != 21e6 {
		t.Errorf("MaxSupply = %v, want preserved", coin.MaxSupply)
	}
	if coin.ATH != 69000 {
		t.Errorf("ATH = %v, want preserved", coin.ATH)
	}
	if coin.Name != "Bitcoin" {
		t.Errorf("Name = %q", coin.Name)
	}
}

func TestRefreshCoin_PlaceholderForUnknownCoin(t *testing.T) {
	env := newTestEnv(t)
	env.primary.marketsFn = func(ctx context.Context, vs string, ids []string, perPage int) ([]market.Coin, error) {
		return nil, rateLimited()
	}
	env.secondary.rateFn = func(ctx context.Context, from, to string) (alphavantage.Rate, error) {
		return alphavantage.Rate{}, rateLimited()
	}

	if err := env.svc.RefreshCoin(context.Background(), "newcoin", "NEW", "New Coin", ""); err != nil {
		t.Fatalf("RefreshCoin() error: %v", err)
	}

	coin, _, ok := env.svc.cachedCoin(context.Background(), "newcoin")
	if !ok {
		t.Fatal("placeholder snapshot missing")
	}
	if coin.Symbol != "new" {
		t.Errorf("Symbol = %q, want lowercased", coin.Symbol)
	}
	if coin.CurrentPrice != 0 {
		t.Errorf("CurrentPrice = %v, want zero for unknown coin", coin.CurrentPrice)
	}
	if coin.Image == "" {
		t.Error("Image empty, want default placeholder")
	}
}

func TestRefreshCoin_NoIdentityFails(t *testing.T) {
	env := newTestEnv(t)
	env.primary.marketsFn = func(ctx context.Context, vs string, ids []string, perPage int) ([]market.Coin, error) {
		return nil, rateLimited()
	}

	if err := env.svc.RefreshCoin(context.Background(), "mystery", "", "", ""); err == nil {
		t.Fatal("RefreshCoin() error = nil, want failure without identity for a placeholder")
	}
}

func TestFallbackCoins_UncachedIdsStayMissing(t *testing.T) {
	env := newTestEnv(t)
	env.seedCoin(t, testCoin("bitcoin", "btc", 50000), time.Hour)

	coins, missing := env.svc.fallbackCoins(context.Background(), "usd", []string{"bitcoin", "ethereum"})
	if len(coins) != 1 || coins[0].ID != "bitcoin" {
		t.Errorf("coins = %+v", coins)
	}
	if len(missing) != 1 || missing[0] != "ethereum" {
		t.Errorf("missing = %v, want [ethereum]", missing)
	}
	if calls := env.secondary.calls.Load(); calls != 0 {
		t.Errorf("secondary calls = %d, want 0 without a resolvable symbol", calls)
	}
}

func TestFallbackCoins_SecondaryFailureKeepsCachedRecord(t *testing.T) {
	env := newTestEnv(t)
	env.seedCoin(t, testCoin("bitcoin", "btc", 0), time.Hour)
	env.secondary.rateFn = func(ctx context.Context, from, to string) (alphavantage.Rate, error) {
		return alphavantage.Rate{}, rateLimited()
	}

	coins, missing := env.svc.fallbackCoins(context.Background(), "usd", []string{"bitcoin"})
	if len(missing) != 0 {
		t.Errorf("missing = %v", missing)
	}
	if len(coins) != 1 || coins[0].ID != "bitcoin" {
		t.Fatalf("coins = %+v, want the cached record kept", coins)
	}
}

func TestFallbackCoins_PageCacheSymbolFeedsSecondary(t *testing.T) {
	env := newTestEnv(t)
	// A priceless record that only exists inside a cached general page: the
	// page scan must still resolve the symbol for the secondary provider.
	env.seedEntry(t, marketsKey("usd", 250, nil), []market.Coin{testCoin("solana", "sol", 0)}, time.Hour, cache.SourcePrimary)
	env.secondary.rateFn = func(ctx context.Context, from, to string) (alphavantage.Rate, error) {
		if from != "sol" && from != "SOL" {
			t.Errorf("secondary from = %q, want page-cached symbol", from)
		}
		return alphavantage.Rate{FromSymbol: "SOL", ToSymbol: "USD", Price: 145}, nil
	}

	coins, missing := env.svc.fallbackCoins(context.Background(), "usd", []string{"solana"})
	if len(missing) != 0 {
		t.Errorf("missing = %v", missing)
	}
	if len(coins) != 1 || coins[0].CurrentPrice != 145 {
		t.Fatalf("coins = %+v, want secondary price", coins)
	}
}
