package market

// Coin is a denormalized per-coin market snapshot. The JSON tags match the
// CoinGecko /coins/markets wire shape so batch payloads round-trip through
// the cache unchanged.
type Coin struct {
	ID                           string   `json:"id"`
	Symbol                       string   `json:"symbol"`
	Name                         string   `json:"name"`
	Image                        string   `json:"image"`
	CurrentPrice                 float64  `json:"current_price"`
	MarketCap                    float64  `json:"market_cap"`
	MarketCapRank                *int     `json:"market_cap_rank"`
	FullyDilutedValuation        *float64 `json:"fully_diluted_valuation"`
	TotalVolume                  float64  `json:"total_volume"`
	High24h                      float64  `json:"high_24h"`
	Low24h                       float64  `json:"low_24h"`
	PriceChange24h               float64  `json:"price_change_24h"`
	PriceChangePercentage24h     float64  `json:"price_change_percentage_24h"`
	MarketCapChange24h           float64  `json:"market_cap_change_24h"`
	MarketCapChangePercentage24h float64  `json:"market_cap_change_percentage_24h"`
	CirculatingSupply            *float64 `json:"circulating_supply"`
	TotalSupply                  *float64 `json:"total_supply"`
	MaxSupply                    *float64 `json:"max_supply"`
	ATH                          float64  `json:"ath"`
	ATHChangePercentage          float64  `json:"ath_change_percentage"`
	ATHDate                      *string  `json:"ath_date"`
	ATL                          float64  `json:"atl"`
	ATLChangePercentage          float64  `json:"atl_change_percentage"`
	ATLDate                      *string  `json:"atl_date"`
	LastUpdated                  string   `json:"last_updated"`
	PriceChangePercentage24hIC   float64  `json:"price_change_percentage_24h_in_currency"`
	PriceChangePercentage7dIC    float64  `json:"price_change_percentage_7d_in_currency"`
	PriceChangePercentage30dIC   float64  `json:"price_change_percentage_30d_in_currency"`
	PriceChangePercentage90dIC   float64  `json:"price_change_percentage_90d_in_currency"`
	PriceChangePercentage200dIC  float64  `json:"price_change_percentage_200d_in_currency"`
}

// GlobalStats is the aggregate market overview returned by the global
// endpoint.
type GlobalStats struct {
	ActiveCryptocurrencies int                `json:"active_cryptocurrencies"`
	Markets                int                `json:"markets"`
	TotalMarketCap         map[string]float64 `json:"total_market_cap"`
	TotalVolume            map[string]float64 `json:"total_volume"`
	MarketCapPercentage    map[string]float64 `json:"market_cap_percentage"`
	MarketCapChange24hUSD  float64            `json:"market_cap_change_percentage_24h_usd"`
	UpdatedAt              int64              `json:"updated_at"`
}

// TrendingCoin is one entry from the trending endpoint.
type TrendingCoin struct {
	ID            string `json:"id"`
	CoinID        int    `json:"coin_id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank int    `json:"market_cap_rank"`
	Thumb         string `json:"thumb"`
	Large         string `json:"large"`
	Score         int    `json:"score"`
}

// SearchHit is one coin from the search endpoint.
type SearchHit struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	MarketCapRank *int   `json:"market_cap_rank"`
	Thumb         string `json:"thumb"`
	Large         string `json:"large"`
}

// Candle is a single OHLC bar.
type Candle struct {
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

// Chart holds raw market-chart arrays as [timestamp-ms, value] pairs.
type Chart struct {
	Prices       [][2]float64 `json:"prices"`
	MarketCaps   [][2]float64 `json:"market_caps"`
	TotalVolumes [][2]float64 `json:"total_volumes"`
}
