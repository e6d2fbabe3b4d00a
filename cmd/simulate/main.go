// Command simulate replays a deterministic paper-trading session against
// the simulated quote feed: a few scripted trades, periodic alert
// evaluation, and a final portfolio/history report. Useful for eyeballing
// the core behavior without wiring a device or a live feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/adapters/logger"
	"papertrader/internal/adapters/notify"
	"papertrader/internal/adapters/simfeed"
	"papertrader/internal/adapters/sqlite"
	"papertrader/internal/alerts"
	"papertrader/internal/domain"
	"papertrader/internal/ledger"
	"papertrader/internal/reporting"
	"papertrader/internal/utils"
)

func main() {
	var (
		ticks    = flag.Int("ticks", 50, "number of simulation ticks to run")
		seed     = flag.Int64("seed", 42, "random-walk seed")
		cooldown = flag.Duration("cooldown", time.Nanosecond, "alert cooldown (default fires at most once per tick)")
		csvOut   = flag.String("csv", "", "optional path to export the trade log as CSV")
		logLevel = flag.String("log-level", "WARN", "log level (DEBUG, INFO, WARN, ERROR)")
	)
	flag.Parse()

	ctx := context.Background()
	appLogger := logger.New(logger.ParseLevel(*logLevel))

	tmpDir, err := os.MkdirTemp("", "papertrader-simulate-*")
	if err != nil {
		log.Fatalf("FATAL: failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: filepath.Join(tmpDir, "simulate.db"),
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: failed to initialize repository: %v", err)
	}
	defer repo.Close()

	feed, err := simfeed.New(simfeed.Config{
		Logger:     appLogger,
		Seed:       *seed,
		Drift:      0.0005,
		Volatility: 0.015,
		InitialPrices: map[string]decimal.Decimal{
			"AAPL": decimal.RequireFromString("190.50"),
			"MSFT": decimal.RequireFromString("415.30"),
			"TSLA": decimal.RequireFromString("245.70"),
		},
	})
	if err != nil {
		log.Fatalf("FATAL: failed to initialize sim feed: %v", err)
	}

	ledgerSvc, err := ledger.New(ctx, ledger.Config{
		Logger:          appLogger,
		LedgerRepo:      repo,
		TradeRepo:       repo,
		StartingBalance: decimal.NewFromInt(10000),
	})
	if err != nil {
		log.Fatalf("FATAL: failed to initialize ledger: %v", err)
	}

	store, err := alerts.NewStore(alerts.StoreConfig{
		Logger:    appLogger,
		Repo:      repo,
		Quotes:    feed,
		MaxAlerts: 20,
	})
	if err != nil {
		log.Fatalf("FATAL: failed to initialize alert store: %v", err)
	}
	const device = "simulate"
	if err := store.RegisterDevice(ctx, device); err != nil {
		log.Fatalf("FATAL: failed to register device: %v", err)
	}

	evaluator, err := alerts.NewEvaluator(alerts.EvaluatorConfig{
		Logger:   appLogger,
		Store:    store,
		Cooldown: *cooldown,
	})
	if err != nil {
		log.Fatalf("FATAL: failed to initialize evaluator: %v", err)
	}
	notifier, err := notify.New(appLogger)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize notifier: %v", err)
	}

	// Watch for a 2% move on AAPL and a TSLA dip.
	if _, err := store.AddAlert(ctx, device, "AAPL", "Apple", domain.AlertPercentChange, decimal.NewFromInt(2)); err != nil {
		log.Fatalf("FATAL: failed to add alert: %v", err)
	}
	if _, err := store.AddAlert(ctx, device, "TSLA", "Tesla", domain.AlertBelow, decimal.RequireFromString("240")); err != nil {
		log.Fatalf("FATAL: failed to add alert: %v", err)
	}

	trade := func(instrument, name string, side domain.TradeSide, amount string) {
		price, err := feed.GetPrice(ctx, instrument)
		if err != nil {
			log.Fatalf("FATAL: no quote for %s: %v", instrument, err)
		}
		res := ledgerSvc.ExecuteTrade(ctx, ledger.TradeInput{
			InstrumentID: instrument,
			DisplayName:  name,
			Side:         side,
			Amount:       decimal.RequireFromString(amount),
			Price:        price,
		})
		if !res.Success {
			fmt.Printf("trade rejected: %v\n", res.Err)
			return
		}
		fmt.Printf("%-4s %-5s €%-8s @ €%s (%s shares)\n",
			res.Trade.Side, instrument, amount, price.StringFixed(2), res.Trade.Shares.StringFixed(4))
	}

	fired := 0
	for tick := 0; tick < *ticks; tick++ {
		switch tick {
		case 1:
			trade("AAPL", "Apple", domain.Buy, "2000")
			trade("MSFT", "Microsoft", domain.Buy, "1500")
		case *ticks / 2:
			trade("AAPL", "Apple", domain.Sell, "1000")
		}

		quotes, err := feed.Snapshot(ctx, feed.Instruments())
		if err != nil {
			log.Fatalf("FATAL: failed to snapshot quotes: %v", err)
		}
		for _, alert := range evaluator.EvaluateAll(ctx, quotes) {
			fired++
			if err := notifier.Notify(ctx, alert); err != nil {
				fmt.Printf("notify failed: %v\n", err)
			}
			fmt.Printf("tick %2d: alert %s %s %s at €%s\n",
				tick, alert.Rule.InstrumentID, alert.Rule.Type,
				alert.Rule.Threshold.String(), alert.ActualPrice.StringFixed(2))
		}
		feed.Tick()
	}

	quotes, err := feed.Snapshot(ctx, feed.Instruments())
	if err != nil {
		log.Fatalf("FATAL: failed to snapshot quotes: %v", err)
	}
	pnl := ledgerSvc.PortfolioPnL(quotes)
	fmt.Println("\n--- session summary ---")
	fmt.Printf("balance:         €%s\n", ledgerSvc.Balance().StringFixed(2))
	fmt.Printf("portfolio value: €%s\n", ledgerSvc.PortfolioValue(quotes).StringFixed(2))
	fmt.Printf("portfolio cost:  €%s\n", ledgerSvc.PortfolioCost().StringFixed(2))
	fmt.Printf("p&l:             €%s (%s%%)\n", pnl.Value.StringFixed(2), pnl.Percent.StringFixed(2))
	fmt.Printf("alerts fired:    %d\n", fired)

	reportSvc, err := reporting.NewService(appLogger, repo)
	if err != nil {
		log.Fatalf("FATAL: failed to initialize reporting: %v", err)
	}
	history, err := reportSvc.History(ctx)
	if err != nil {
		log.Fatalf("FATAL: failed to load history: %v", err)
	}
	for _, day := range history {
		fmt.Printf("\n%s\n", day.Date)
		for _, entry := range reporting.WithLivePnL(day.Trades, quotes) {
			fmt.Printf("  #%d %-4s %-5s €%-9s p&l €%s\n",
				entry.Trade.ID, entry.Trade.Side, entry.Trade.InstrumentID,
				entry.Trade.Amount.StringFixed(2), entry.PnL.StringFixed(2))
		}
	}

	if *csvOut != "" {
		trades, err := repo.FindAll(ctx)
		if err != nil {
			log.Fatalf("FATAL: failed to load trades for export: %v", err)
		}
		if err := utils.WriteTradesToCSV(trades, *csvOut); err != nil {
			log.Fatalf("FATAL: failed to write CSV: %v", err)
		}
		fmt.Printf("\ntrade log exported to %s\n", *csvOut)
	}
}
