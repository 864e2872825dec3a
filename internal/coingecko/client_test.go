package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"cryptodash/internal/provider"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := New("", server.URL, nil)
	c.client.SetRetryCount(0)
	return c
}

func TestMarkets_Success(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("vs_currency") != "usd" {
			t.Errorf("vs_currency = %q, want usd", q.Get("vs_currency"))
		}
		if q.Get("ids") != "bitcoin,ethereum" {
			t.Errorf("ids = %q, want bitcoin,ethereum", q.Get("ids"))
		}
		if q.Get("order") != "market_cap_desc" {
			t.Errorf("order = %q, want market_cap_desc", q.Get("order"))
		}
		if q.Get("price_change_percentage") != "24h,7d,30d,90d,200d" {
			t.Errorf("price_change_percentage = %q", q.Get("price_change_percentage"))
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":50000,"market_cap":1000000000},
			{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3000,"market_cap":400000000}
		]`))
	})

	client := newTestClient(t, handler)
	coins, err := client.Markets(context.Background(), "usd", []string{"bitcoin", "ethereum"}, 250)
	if err != nil {
		t.Fatalf("Markets() error: %v", err)
	}

	if len(coins) != 2 {
		t.Fatalf("len(coins) = %d, want 2", len(coins))
	}
	if coins[0].ID != "bitcoin" || coins[0].CurrentPrice != 50000 {
		t.Errorf("coins[0] = %+v", coins[0])
	}
	if coins[1].Symbol != "eth" {
		t.Errorf("coins[1].Symbol = %q, want eth", coins[1].Symbol)
	}
}

func TestMarkets_RateLimited(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	client := newTestClient(t, handler)
	_, err := client.Markets(context.Background(), "usd", nil, 100)
	if err == nil {
		t.Fatal("Markets() error = nil, want rate limit")
	}
	if !provider.IsRateLimited(err) {
		t.Errorf("IsRateLimited() = false for %v", err)
	}
}

func TestMarkets_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client := newTestClient(t, handler)
	_, err := client.Markets(context.Background(), "usd", nil, 100)
	if err == nil {
		t.Fatal("Markets() error = nil, want server error")
	}
	if provider.IsRateLimited(err) {
		t.Error("server error classified as rate limited")
	}
}

func TestSimplePrice(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("include_24hr_change") != "true" {
			t.Errorf("include_24hr_change = %q, want true", r.URL.Query().Get("include_24hr_change"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin":{"usd":50000,"usd_24h_change":2.5}}`))
	})

	client := newTestClient(t, handler)
	prices, err := client.SimplePrice(context.Background(), []string{"bitcoin"}, []string{"usd"})
	if err != nil {
		t.Fatalf("SimplePrice() error: %v", err)
	}
	if prices["bitcoin"]["usd"] != 50000 {
		t.Errorf("bitcoin usd price = %v, want 50000", prices["bitcoin"]["usd"])
	}
}

func TestOHLC(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/bitcoin/ohlc" {
			t.Errorf("path = %q, want /coins/bitcoin/ohlc", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[1700000000000,100,110,90,105],[1700086400000,105,120,100,115]]`))
	})

	client := newTestClient(t, handler)
	candles, err := client.OHLC(context.Background(), "bitcoin", "usd", 365)
	if err != nil {
		t.Fatalf("OHLC() error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(candles))
	}
	if candles[0].Open != 100 || candles[0].Close != 105 {
		t.Errorf("candles[0] = %+v", candles[0])
	}
}

func TestOHLC_MalformedRow(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[[1700000000000,100]]`))
	})

	client := newTestClient(t, handler)
	_, err := client.OHLC(context.Background(), "bitcoin", "usd", 30)
	if err == nil {
		t.Fatal("OHLC() error = nil for malformed row")
	}
}

func TestChartPoints_TransformsAndFilters(t *testing.T) {
	day := int64(24 * time.Hour / time.Millisecond)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Jan 1, 2, 3 at increasing prices
		body := `{"prices":[` +
			`[` + itoa(base) + `,100],` +
			`[` + itoa(base+day) + `,200],` +
			`[` + itoa(base+2*day) + `,300]]}`
		w.Write([]byte(body))
	})

	client := newTestClient(t, handler)
	points, err := client.ChartPoints(context.Background(), "bitcoin", "usd", "2024-01-02", "2024-01-03")
	if err != nil {
		t.Fatalf("ChartPoints() error: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("len(points) = %d, want 2 after range filter", len(points))
	}
	if points[0].Date != "2024-01-02" || points[0].Price != 200 {
		t.Errorf("points[0] = %+v", points[0])
	}
	if points[1].Date != "2024-01-03" {
		t.Errorf("points[1].Date = %q, want 2024-01-03", points[1].Date)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestGlobal(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"active_cryptocurrencies":9000,"markets":800,"total_market_cap":{"usd":2000000000000}}}`))
	})

	client := newTestClient(t, handler)
	stats, err := client.Global(context.Background())
	if err != nil {
		t.Fatalf("Global() error: %v", err)
	}
	if stats.ActiveCryptocurrencies != 9000 {
		t.Errorf("ActiveCryptocurrencies = %d, want 9000", stats.ActiveCryptocurrencies)
	}
	if stats.TotalMarketCap["usd"] != 2e12 {
		t.Errorf("TotalMarketCap[usd] = %v", stats.TotalMarketCap["usd"])
	}
}

func TestTrending(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"coins":[{"item":{"id":"solana","name":"Solana","symbol":"SOL","market_cap_rank":5}}]}`))
	})

	client := newTestClient(t, handler)
	coins, err := client.Trending(context.Background())
	if err != nil {
		t.Fatalf("Trending() error: %v", err)
	}
	if len(coins) != 1 || coins[0].ID != "solana" {
		t.Errorf("coins = %+v", coins)
	}
}

func TestSearch(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("query") != "bit" {
			t.Errorf("query = %q, want bit", r.URL.Query().Get("query"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"coins":[{"id":"bitcoin","name":"Bitcoin","symbol":"BTC"}]}`))
	})

	client := newTestClient(t, handler)
	hits, err := client.Search(context.Background(), "bit")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "bitcoin" {
		t.Errorf("hits = %+v", hits)
	}
}
