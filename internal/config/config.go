package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the market data cache service.
type Config struct {
	// API Keys for various services
	CoinGeckoAPIKey    string `mapstructure:"coingecko_api_key"`
	AlphavantageAPIKey string `mapstructure:"alphavantage_api_key"`

	// Base URLs for API endpoints (configurable for testing)
	CoinGeckoBaseURL     string `mapstructure:"coingecko_base_url"`
	AlphavantageBaseURL  string `mapstructure:"alphavantage_base_url"`
	CryptoCompareBaseURL string `mapstructure:"cryptocompare_base_url"`

	// Cache store: empty address selects the in-process store
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// Coins pinned by wallets, refreshed by the scheduled job
	WalletCoins []string `mapstructure:"wallet_coins"`

	// Quote currency for refreshed datasets
	VsCurrency string `mapstructure:"vs_currency"`
}

// Load reads configuration from environment variables and optional config file.
// Environment variables take precedence over config file values.
//
// Expected environment variables:
//   - ALPHAVANTAGE_API_KEY
//   - COINGECKO_API_KEY (optional, free tier works without one)
//   - COINGECKO_BASE_URL (optional, defaults to production)
//   - ALPHAVANTAGE_BASE_URL (optional, defaults to production)
//   - CRYPTOCOMPARE_BASE_URL (optional, defaults to production)
//   - REDIS_ADDR (optional, empty selects the in-process store)
//   - REDIS_PASSWORD (optional)
func Load() (*Config, error) {
	v := viper.New()

	// Set up environment variable support
	v.SetEnvPrefix("") // No prefix, use full names
	v.AutomaticEnv()

	// Set defaults
	v.SetDefault("coingecko_base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("alphavantage_base_url", "https://www.alphavantage.co/query")
	v.SetDefault("cryptocompare_base_url", "https://min-api.cryptocompare.com")
	v.SetDefault("vs_currency", "usd")

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.cryptodash")

	// Read config file (ignore if not found)
	_ = v.ReadInConfig()

	// Bind environment variables for API keys
	v.BindEnv("coingecko_api_key", "COINGECKO_API_KEY")
	v.BindEnv("alphavantage_api_key", "ALPHAVANTAGE_API_KEY")

	// Bind environment variables for base URLs and the cache store
	v.BindEnv("coingecko_base_url", "COINGECKO_BASE_URL")
	v.BindEnv("alphavantage_base_url", "ALPHAVANTAGE_BASE_URL")
	v.BindEnv("cryptocompare_base_url", "CRYPTOCOMPARE_BASE_URL")
	v.BindEnv("redis_addr", "REDIS_ADDR")
	v.BindEnv("redis_password", "REDIS_PASSWORD")
	v.BindEnv("redis_db", "REDIS_DB")

	// Unmarshal config into struct (handles both simple and complex fields)
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate required fields
	var missing []string
	if config.AlphavantageAPIKey == "" {
		missing = append(missing, "ALPHAVANTAGE_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return config, nil
}
