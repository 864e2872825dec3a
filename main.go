package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cryptodash/internal/alphavantage"
	"cryptodash/internal/cache"
	"cryptodash/internal/cache/redisstore"
	"cryptodash/internal/coingecko"
	"cryptodash/internal/config"
	"cryptodash/internal/cryptocompare"
	"cryptodash/internal/marketdata"
	"cryptodash/internal/refresh"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.Default()

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Select the entry store: shared Redis when configured, in-process otherwise
	var store cache.Store
	if cfg.RedisAddr != "" {
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			log.Fatalf("Failed to reach redis at %s: %v", cfg.RedisAddr, err)
		}
		store = rs
	} else {
		store = cache.NewMemory()
	}

	// Wire the cache engine, providers, and orchestrator
	engine := cache.NewService(store, logger)
	svc := marketdata.New(
		engine,
		coingecko.New(cfg.CoinGeckoAPIKey, cfg.CoinGeckoBaseURL, logger),
		alphavantage.New(cfg.AlphavantageAPIKey, cfg.AlphavantageBaseURL, logger),
		cryptocompare.New(cfg.CryptoCompareBaseURL, logger),
		logger,
	)

	// Assemble the out-of-band refresh tasks
	tasks := []refresh.Task{
		{Name: "refresh:global", Run: func(ctx context.Context) error {
			_, err := svc.GlobalDirect(ctx)
			return err
		}},
		{Name: "refresh:trending", Run: func(ctx context.Context) error {
			_, err := svc.TrendingDirect(ctx)
			return err
		}},
		{Name: "refresh:markets", Run: func(ctx context.Context) error {
			_, err := svc.FetchFreshMarkets(ctx, cfg.VsCurrency, nil, 250)
			return err
		}},
		{Name: "refresh:top50", Run: func(ctx context.Context) error {
			_, err := svc.Top50PerformanceDirect(ctx)
			return err
		}},
	}
	if len(cfg.WalletCoins) > 0 {
		tasks = append(tasks, refresh.Task{Name: "refresh:wallet", Run: func(ctx context.Context) error {
			_, err := svc.FetchFreshMarkets(ctx, cfg.VsCurrency, cfg.WalletCoins, 250)
			return err
		}})
	}

	// Add timeout to prevent hanging indefinitely; rate limiting can make
	// the wallet refresh take a while
	refreshCtx, refreshCancel := context.WithTimeout(ctx, 5*time.Minute)
	defer refreshCancel()

	// Run all refresh tasks concurrently
	fmt.Println("Refreshing market data caches...")
	fmt.Println("================================================")
	if err := refresh.New(tasks).Run(refreshCtx); err != nil {
		log.Fatalf("Refresh failed: %v", err)
	}

	fmt.Println("================================================")
	fmt.Println("All caches refreshed!")
}
