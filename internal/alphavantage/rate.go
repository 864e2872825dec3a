// Package alphavantage is the adapter for the secondary cross-rate
// provider. It is consulted only as a fallback when the primary provider is
// rate limited, and its payload shape is adapted into the common coin
// snapshot shape.
package alphavantage

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"resty.dev/v3"

	"cryptodash/internal/market"
	"cryptodash/internal/provider"
	"cryptodash/internal/ratelimit"
)

// ExchangeRateResponse represents the AlphaVantage API response for a
// currency exchange rate. Throttled requests come back as HTTP 200 with a
// Note or Information field instead of data.
type ExchangeRateResponse struct {
	RealtimeCurrencyExchangeRate struct {
		FromCurrencyCode string `json:"1. From_Currency Code"`
		FromCurrencyName string `json:"2. From_Currency Name"`
		ToCurrencyCode   string `json:"3. To_Currency Code"`
		ToCurrencyName   string `json:"4. To_Currency Name"`
		ExchangeRate     string `json:"5. Exchange Rate"`
		LastRefreshed    string `json:"6. Last Refreshed"`
		TimeZone         string `json:"7. Time Zone"`
		BidPrice         string `json:"8. Bid Price"`
		AskPrice         string `json:"9. Ask Price"`
	} `json:"Realtime Currency Exchange Rate"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// Rate is a parsed crypto/fiat exchange rate.
type Rate struct {
	FromSymbol    string
	ToSymbol      string
	Price         float64
	LastRefreshed string
}

// Client talks to the AlphaVantage HTTP API.
type Client struct {
	apiKey string
	client *resty.Client
	log    *slog.Logger
}

// New creates an AlphaVantage client.
func New(apiKey, baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		apiKey: apiKey,
		client: provider.NewHTTPClient(baseURL),
		log:    log,
	}
}

// ExchangeRate fetches the current exchange rate between a crypto symbol and
// a quote currency.
func (c *Client) ExchangeRate(ctx context.Context, from, to string) (Rate, error) {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APIAlphaVantage); err != nil {
		return Rate{}, provider.ClassifyTransport(err)
	}

	var result ExchangeRateResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"apikey":        c.apiKey,
			"function":      "CURRENCY_EXCHANGE_RATE",
			"from_currency": strings.ToUpper(from),
			"to_currency":   strings.ToUpper(to),
		}).
		SetResult(&result).
		Get("")

	if err != nil {
		return Rate{}, provider.ClassifyTransport(err)
	}

	if !resp.IsSuccess() {
		c.log.Error("alphavantage API error",
			"status", resp.StatusCode(),
			"body", resp.String())
		return Rate{}, provider.ClassifyStatus(resp.StatusCode())
	}

	// AlphaVantage reports throttling in-band with a 200 status
	if result.Note != "" || result.Information != "" {
		return Rate{}, provider.NewRateLimitError(resp.StatusCode())
	}

	raw := result.RealtimeCurrencyExchangeRate
	if raw.ExchangeRate == "" {
		return Rate{}, provider.NewValidationError("exchange rate not found in response")
	}

	price, err := strconv.ParseFloat(raw.ExchangeRate, 64)
	if err != nil {
		return Rate{}, provider.NewValidationError("unparseable exchange rate: " + raw.ExchangeRate)
	}
	if price <= 0 {
		return Rate{}, provider.NewValidationError("non-positive exchange rate")
	}

	return Rate{
		FromSymbol:    raw.FromCurrencyCode,
		ToSymbol:      raw.ToCurrencyCode,
		Price:         price,
		LastRefreshed: raw.LastRefreshed,
	}, nil
}

// Coin adapts a rate into the common coin snapshot shape. Fields the
// exchange-rate payload cannot provide stay at their zero values.
func (r Rate) Coin(id, symbol, name, image, lastUpdated string) market.Coin {
	if r.LastRefreshed != "" {
		lastUpdated = r.LastRefreshed
	}
	return market.Coin{
		ID:           id,
		Symbol:       strings.ToLower(symbol),
		Name:         name,
		Image:        image,
		CurrentPrice: r.Price,
		LastUpdated:  lastUpdated,
	}
}
