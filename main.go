package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"os"
	"os/signal"
	"syscall"

	"papertrader/config"
	"papertrader/internal/adapters/binancefeed"
	"papertrader/internal/adapters/logger"
	"papertrader/internal/adapters/notify"
	"papertrader/internal/adapters/simfeed"
	"papertrader/internal/adapters/sqlite"
	"papertrader/internal/alerts"
	"papertrader/internal/ledger"
	"papertrader/internal/ports"
	"papertrader/internal/scheduler"
)

func main() {
	ctx := context.Background()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Quote Source
	var quotes ports.QuoteSource
	var feed *simfeed.Feed
	switch cfg.QuoteSource {
	case "binance":
		quotes, err = binancefeed.New(binancefeed.Config{
			APIKey:     cfg.APIKey,
			SecretKey:  cfg.SecretKey,
			UseTestnet: cfg.IsTestnet,
			Logger:     appLogger,
		})
	default:
		feed, err = simfeed.New(simfeed.Config{
			Logger:        appLogger,
			Seed:          cfg.SimSeed,
			Drift:         cfg.SimDrift,
			Volatility:    cfg.SimVolatility,
			InitialPrices: cfg.InitialPrices,
		})
		quotes = feed
	}
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize quote source: %v", err)
	}
	appLogger.Info(ctx, "Quote source initialized", map[string]interface{}{"source": cfg.QuoteSource})

	// 5. Initialize Ledger Service
	ledgerSvc, err := ledger.New(ctx, ledger.Config{
		Logger:          appLogger,
		LedgerRepo:      repo,
		TradeRepo:       repo,
		StartingBalance: cfg.StartingBalance,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize ledger service: %v", err)
	}
	appLogger.Info(ctx, "Ledger service initialized", map[string]interface{}{
		"balance": ledgerSvc.Balance().StringFixed(2),
	})

	// 6. Initialize Alert Store and Evaluator
	store, err := alerts.NewStore(alerts.StoreConfig{
		Logger:    appLogger,
		Repo:      repo,
		Quotes:    quotes,
		MaxAlerts: cfg.MaxAlertsPerDevice,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize alert store: %v", err)
	}
	if err := store.RegisterDevice(ctx, cfg.DeviceID); err != nil {
		log.Fatalf("FATAL: Failed to register device: %v", err)
	}

	evaluator, err := alerts.NewEvaluator(alerts.EvaluatorConfig{
		Logger:   appLogger,
		Store:    store,
		Cooldown: cfg.AlertCooldown,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize alert evaluator: %v", err)
	}

	notifier, err := notify.New(appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize notifier: %v", err)
	}

	// 7. Start the Evaluation Scheduler
	sched, err := scheduler.New(appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize scheduler: %v", err)
	}
	evalJob, err := alerts.NewEvaluationJob(appLogger, store, evaluator, quotes, notifier)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize evaluation job: %v", err)
	}
	if err := sched.AddEvery(cfg.EvalInterval, evalJob); err != nil {
		log.Fatalf("FATAL: Failed to schedule evaluation job: %v", err)
	}
	if feed != nil {
		// The simulated feed only moves when ticked.
		tickJob := scheduler.JobFunc{JobName: "sim-feed-tick", Fn: func(ctx context.Context) error {
			feed.Tick()
			return nil
		}}
		if err := sched.AddEvery(cfg.EvalInterval, tickJob); err != nil {
			log.Fatalf("FATAL: Failed to schedule feed tick job: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	appLogger.Info(ctx, "Paper trading session running", map[string]interface{}{
		"device":       cfg.DeviceID,
		"evalInterval": cfg.EvalInterval.String(),
		"cooldown":     cfg.AlertCooldown.String(),
	})

	// 8. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
}
