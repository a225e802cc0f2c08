package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"surgeWatch/config"
	"surgeWatch/internal/adapters/binanceclient"
	"surgeWatch/internal/adapters/logger"
	"surgeWatch/internal/app"
	"surgeWatch/internal/utils"
)

func main() {
	out := flag.String("out", "", "CSV output path (default data/universe_<date>.csv)")
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 3. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	stats, err := binanceClient.GetUniverse(ctx)
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching universe")
		log.Fatalf("Error fetching universe: %v", err)
	}
	eligible := app.FilterEligible(stats, cfg.QuoteAsset, cfg.MinQuoteVolume, cfg.ExcludeSymbols)
	appLogger.Info(ctx, "Fetched universe", map[string]interface{}{
		"symbols":        len(stats),
		"eligible":       len(eligible),
		"minQuoteVolume": cfg.MinQuoteVolume,
	})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/universe_%s.csv", time.Now().UTC().Format("20060102_1504"))
	}
	if err := utils.WriteUniverseToCSV(stats, eligible, filename); err != nil {
		appLogger.Error(ctx, err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	fmt.Printf("%d of %d symbols eligible, saved to %s\n", len(eligible), len(stats), filename)
}
