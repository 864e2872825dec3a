// Package cryptocompare is the adapter for the deep-history provider used
// to seed long bitcoin price series that the primary provider cannot serve
// in full.
package cryptocompare

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"resty.dev/v3"

	"cryptodash/internal/market"
	"cryptodash/internal/provider"
	"cryptodash/internal/ratelimit"
)

// historyResponse represents the CryptoCompare histoday payload.
type historyResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time  int64   `json:"time"`
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

// Client talks to the CryptoCompare HTTP API.
type Client struct {
	client *resty.Client
	log    *slog.Logger
}

// New creates a CryptoCompare client.
func New(baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		client: provider.NewHTTPClient(baseURL),
		log:    log,
	}
}

// DailyHistory fetches the full daily close-price history for a symbol.
// Rows from before the asset traded carry a zero close and are dropped.
func (c *Client) DailyHistory(ctx context.Context, symbol, vsCurrency string) ([]market.Point, error) {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APICryptoCompare); err != nil {
		return nil, provider.ClassifyTransport(err)
	}

	var result historyResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"fsym":    strings.ToUpper(symbol),
			"tsym":    strings.ToUpper(vsCurrency),
			"allData": "true",
		}).
		SetResult(&result).
		Get("/data/v2/histoday")

	if err != nil {
		return nil, provider.ClassifyTransport(err)
	}

	if !resp.IsSuccess() {
		c.log.Error("cryptocompare API error",
			"status", resp.StatusCode(),
			"body", resp.String())
		return nil, provider.ClassifyStatus(resp.StatusCode())
	}

	if result.Response == "Error" {
		return nil, provider.NewValidationError("cryptocompare error: " + result.Message)
	}

	points := make([]market.Point, 0, len(result.Data.Data))
	for _, row := range result.Data.Data {
		if row.Close <= 0 {
			continue
		}
		points = append(points, market.Point{
			Date:      time.Unix(row.Time, 0).UTC().Format("2006-01-02"),
			Timestamp: row.Time * 1000,
			Price:     row.Close,
		})
	}
	market.SortPoints(points)
	return points, nil
}
