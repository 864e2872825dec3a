// Package coingecko is the adapter for the primary market-data provider.
// Every call is rate limited, carries a bounded timeout, and classifies all
// transport/HTTP failures before returning; callers never see raw statuses.
package coingecko

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"resty.dev/v3"

	"cryptodash/internal/market"
	"cryptodash/internal/provider"
	"cryptodash/internal/ratelimit"
)

// Client talks to the CoinGecko HTTP API.
type Client struct {
	apiKey string
	client *resty.Client
	log    *slog.Logger
	now    func() time.Time
}

// New creates a CoinGecko client. The API key is optional on the free tier.
func New(apiKey, baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	client := provider.NewHTTPClient(baseURL)
	if apiKey != "" {
		client.SetHeader("x-cg-demo-api-key", apiKey)
	}
	return &Client{
		apiKey: apiKey,
		client: client,
		log:    log,
		now:    time.Now,
	}
}

func (c *Client) get(ctx context.Context, path string, params map[string]string, result any) error {
	if err := ratelimit.GetLimiter().Wait(ctx, ratelimit.APICoinGecko); err != nil {
		return provider.ClassifyTransport(err)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(result).
		Get(path)

	if err != nil {
		return provider.ClassifyTransport(err)
	}

	if !resp.IsSuccess() {
		c.log.Error("coingecko API error",
			"path", path,
			"status", resp.StatusCode(),
			"body", resp.String())
		return provider.ClassifyStatus(resp.StatusCode())
	}

	return nil
}

// Markets fetches the batch market snapshot. An empty ids slice returns the
// top coins by market cap.
func (c *Client) Markets(ctx context.Context, vsCurrency string, ids []string, perPage int) ([]market.Coin, error) {
	params := map[string]string{
		"vs_currency":             vsCurrency,
		"order":                   "market_cap_desc",
		"per_page":                strconv.Itoa(perPage),
		"page":                    "1",
		"sparkline":               "false",
		"price_change_percentage": "24h,7d,30d,90d,200d",
	}
	if len(ids) > 0 {
		params["ids"] = strings.Join(ids, ",")
	}

	var coins []market.Coin
	if err := c.get(ctx, "/coins/markets", params, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// SimplePrice fetches spot prices for ids in the given quote currencies,
// with 24h change included under "<currency>_24h_change".
func (c *Client) SimplePrice(ctx context.Context, ids, vsCurrencies []string) (map[string]map[string]float64, error) {
	params := map[string]string{
		"ids":                 strings.Join(ids, ","),
		"vs_currencies":       strings.Join(vsCurrencies, ","),
		"include_24hr_change": "true",
	}

	var prices map[string]map[string]float64
	if err := c.get(ctx, "/simple/price", params, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// OHLC fetches candle data for a coin over the trailing days window.
func (c *Client) OHLC(ctx context.Context, id, vsCurrency string, days int) ([]market.Candle, error) {
	params := map[string]string{
		"vs_currency": vsCurrency,
		"days":        strconv.Itoa(days),
	}

	var rows [][]float64
	if err := c.get(ctx, fmt.Sprintf("/coins/%s/ohlc", id), params, &rows); err != nil {
		return nil, err
	}

	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			return nil, provider.NewValidationError(fmt.Sprintf("ohlc row has %d fields, want 5", len(row)))
		}
		candles = append(candles, market.Candle{
			Timestamp: int64(row[0]),
			Open:      row[1],
			High:      row[2],
			Low:       row[3],
			Close:     row[4],
		})
	}
	return candles, nil
}

// MarketChart fetches the time-series arrays for a coin. days is a number of
// days or "max"; interval may be empty for the provider default.
func (c *Client) MarketChart(ctx context.Context, id, vsCurrency, days, interval string) (market.Chart, error) {
	params := map[string]string{
		"vs_currency": vsCurrency,
		"days":        days,
	}
	if interval != "" {
		params["interval"] = interval
	}

	var chart market.Chart
	if err := c.get(ctx, fmt.Sprintf("/coins/%s/market_chart", id), params, &chart); err != nil {
		return market.Chart{}, err
	}
	return chart, nil
}

// ChartPoints fetches a daily market chart and converts it to date-keyed
// points. from/to bound the returned dates when non-empty; the provider only
// serves trailing windows, so the fetch depth is derived from the range and
// excess dates are filtered out.
func (c *Client) ChartPoints(ctx context.Context, id, vsCurrency, from, to string) ([]market.Point, error) {
	days := "max"
	if from != "" {
		start, err := time.Parse("2006-01-02", from)
		if err == nil {
			span := int(c.now().Sub(start).Hours()/24) + 2
			if span < 1 {
				span = 1
			}
			days = strconv.Itoa(span)
		}
	}

	chart, err := c.MarketChart(ctx, id, vsCurrency, days, "daily")
	if err != nil {
		return nil, err
	}

	points := make([]market.Point, 0, len(chart.Prices))
	for _, pricePoint := range chart.Prices {
		ts := int64(pricePoint[0])
		date := time.UnixMilli(ts).UTC().Format("2006-01-02")
		if from != "" && date < from {
			continue
		}
		if to != "" && date > to {
			continue
		}
		points = append(points, market.Point{
			Date:      date,
			Timestamp: ts,
			Price:     pricePoint[1],
		})
	}
	market.SortPoints(points)
	return points, nil
}

// globalResponse wraps the global endpoint payload
type globalResponse struct {
	Data market.GlobalStats `json:"data"`
}

// Global fetches aggregate market statistics.
func (c *Client) Global(ctx context.Context) (market.GlobalStats, error) {
	var result globalResponse
	if err := c.get(ctx, "/global", nil, &result); err != nil {
		return market.GlobalStats{}, err
	}
	return result.Data, nil
}

// trendingResponse wraps the trending endpoint payload
type trendingResponse struct {
	Coins []struct {
		Item market.TrendingCoin `json:"item"`
	} `json:"coins"`
}

// Trending fetches the currently trending coins.
func (c *Client) Trending(ctx context.Context) ([]market.TrendingCoin, error) {
	var result trendingResponse
	if err := c.get(ctx, "/search/trending", nil, &result); err != nil {
		return nil, err
	}

	coins := make([]market.TrendingCoin, 0, len(result.Coins))
	for _, entry := range result.Coins {
		coins = append(coins, entry.Item)
	}
	return coins, nil
}

// searchResponse wraps the search endpoint payload
type searchResponse struct {
	Coins []market.SearchHit `json:"coins"`
}

// Search looks up coins matching the query string.
func (c *Client) Search(ctx context.Context, query string) ([]market.SearchHit, error) {
	var result searchResponse
	if err := c.get(ctx, "/search", map[string]string{"query": query}, &result); err != nil {
		return nil, err
	}
	return result.Coins, nil
}
