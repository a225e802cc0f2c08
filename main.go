package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up

	"surgeWatch/config"
	"surgeWatch/internal/adapters/binanceclient"
	"surgeWatch/internal/adapters/httpapi"
	"surgeWatch/internal/adapters/logger"
	"surgeWatch/internal/adapters/sqlite"
	"surgeWatch/internal/adapters/telegram"
	"surgeWatch/internal/app"
	"surgeWatch/internal/registry"
	"surgeWatch/internal/strategy"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if err := cfg.RequireNotifier(); err != nil {
		log.Fatalf("FATAL: Alert delivery is not configured: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String(), "format": cfg.LogFormat})

	// 3. Initialize Alert Journal (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger.With("sqlite"),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize alert journal")
		log.Fatalf("FATAL: Failed to initialize alert journal: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing alert journal")
		}
	}()
	appLogger.Info(ctx, "Alert journal initialized", map[string]interface{}{"path": cfg.DBPath})

	// 4. Initialize Exchange Adapters (REST + websocket)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger.With("binance"),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	stream, err := binanceclient.NewStream(binanceclient.StreamConfig{
		UseTestnet:  cfg.IsTestnet,
		ReadTimeout: cfg.StreamReadTimeout,
		Logger:      appLogger.With("stream"),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance stream")
		log.Fatalf("FATAL: Failed to initialize Binance stream: %v", err)
	}
	appLogger.Info(ctx, "Binance adapters initialized", map[string]interface{}{"testnet": cfg.IsTestnet})

	// 5. Initialize Notifier
	notifier, err := telegram.New(telegram.Config{
		BotToken: cfg.TelegramBotToken,
		APIBase:  cfg.TelegramAPIBase,
		Logger:   appLogger.With("telegram"),
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Telegram notifier")
		log.Fatalf("FATAL: Failed to initialize Telegram notifier: %v", err)
	}

	// 6. Initialize State and Conditions
	reg := registry.New(registry.Config{})
	evaluator, err := strategy.New(strategy.DefaultConfig(cfg.VolumeThreshold, cfg.PriceThreshold, cfg.OIThreshold), appLogger.With("evaluator"))
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize condition evaluator")
		log.Fatalf("FATAL: Failed to initialize condition evaluator: %v", err)
	}

	// 7. Initialize Application Components
	dispatcher, err := app.NewAlertDispatcher(app.DispatcherConfig{
		Cooldown: cfg.AlertCooldown,
		ChatID:   cfg.TelegramChatID,
	}, reg, notifier, repo, appLogger.With("dispatcher"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize alert dispatcher: %v", err)
	}
	screener, err := app.NewScreener(app.ScreenerConfig{
		Interval:       cfg.ScreenInterval,
		QuoteAsset:     cfg.QuoteAsset,
		MinQuoteVolume: cfg.MinQuoteVolume,
		Exclude:        cfg.ExcludeSymbols,
		TrendBackfill:  cfg.TrendBackfill,
	}, reg, binanceClient, binanceClient, evaluator, dispatcher, appLogger.With("screener"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize screener: %v", err)
	}
	ingestor, err := app.NewStreamIngestor(app.IngestorConfig{
		BatchSize:       cfg.StreamBatchSize,
		RestartInterval: cfg.StreamRestartInterval,
	}, reg, stream, appLogger.With("ingestor"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize stream ingestor: %v", err)
	}
	poller, err := app.NewOpenInterestPoller(app.PollerConfig{
		Interval:    cfg.OIPollInterval,
		BatchSize:   cfg.OIBatchSize,
		Concurrency: int64(cfg.OIConcurrency),
		BatchPause:  cfg.OIBatchPause,
	}, reg, binanceClient, appLogger.With("poller"))
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize open interest poller: %v", err)
	}

	var extras []app.Runner
	if cfg.HTTPAddr != "" {
		query, err := app.NewQueryService(reg, evaluator, repo)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize query service: %v", err)
		}
		server, err := httpapi.New(httpapi.Config{
			Addr:   cfg.HTTPAddr,
			Debug:  cfg.LogLevel == logger.LevelDebug,
			Query:  query,
			Logger: appLogger.With("http"),
		})
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize HTTP API: %v", err)
		}
		extras = append(extras, server)
	}

	monitor, err := app.NewMonitorService(appLogger, binanceClient, screener, ingestor, poller, extras...)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize monitor service")
		log.Fatalf("FATAL: Failed to initialize monitor service: %v", err)
	}

	// 8. Start the Service
	if err := monitor.Start(ctx); err != nil {
		appLogger.Error(ctx, err, "Monitor service exited with error")
		log.Fatalf("FATAL: Monitor service exited with error: %v", err)
	}

	appLogger.Info(ctx, "Application finished gracefully.")
}
