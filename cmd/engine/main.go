// Package main is the entry point for the day-trading engine.
//
// The engine:
//  1. Loads configuration (JSON file + environment overrides).
//  2. Builds the Store Gateway (DynamoDB), Market-Data Adapter, MAB
//     Selector, Position Lifecycle, and an optional Postgres audit mirror.
//  3. Configures one Strategy Runner per enabled strategy and hands them
//     to the Coordinator, which launches and supervises them concurrently.
//  4. Watches the config file for live threshold hot-reloads.
//  5. Blocks until SIGINT/SIGTERM, then drains in-flight work within a
//     grace period and exits zero.
//
// It takes no positional arguments; every setting comes from the config
// file and environment.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/kestrel-labs/daytrader-engine/internal/calendar"
	"github.com/kestrel-labs/daytrader-engine/internal/config"
	"github.com/kestrel-labs/daytrader-engine/internal/coordinator"
	"github.com/kestrel-labs/daytrader-engine/internal/exitengine"
	"github.com/kestrel-labs/daytrader-engine/internal/mab"
	"github.com/kestrel-labs/daytrader-engine/internal/marketdata"
	"github.com/kestrel-labs/daytrader-engine/internal/memgov"
	"github.com/kestrel-labs/daytrader-engine/internal/position"
	"github.com/kestrel-labs/daytrader-engine/internal/runner"
	"github.com/kestrel-labs/daytrader-engine/internal/storage"
	"github.com/kestrel-labs/daytrader-engine/internal/store"
	"github.com/kestrel-labs/daytrader-engine/internal/strategy"
	"github.com/kestrel-labs/daytrader-engine/internal/validate"
	"github.com/kestrel-labs/daytrader-engine/internal/webhook"
)

// gracePeriod bounds how long the Coordinator waits, after a shutdown
// signal, for in-flight ticks to drain before returning anyway.
const gracePeriod = 20 * time.Second

func main() {
	configPath := "config/config.json"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		configPath = v
	}

	logger := log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := buildGateway(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("store gateway: %v", err)
	}

	governor := memgov.New(cfg.MemoryGovernor.PauseMB, cfg.MemoryGovernor.AbortMB, logger)
	mdClient := marketdata.NewClient(cfg.MarketData.BaseURL, cfg.MarketData.APIKeyHeader, cfg.MarketData.APIKey, marketdata.NewGovernorAdapter(governor), logger)

	cal, err := calendar.NewCalendar(cfg.Calendar.HolidayFilePath)
	if err != nil {
		logger.Fatalf("calendar: %v", err)
	}

	emitter := webhook.NewEmitter(webhook.Config{
		URL:            cfg.Webhook.URL,
		Enabled:        cfg.Webhook.Enabled,
		TimeoutSeconds: cfg.Webhook.TimeoutSeconds,
	}, logger)

	selector := mab.NewSelector(gateway)
	lifecycle := position.NewLifecycle(gateway, selector, emitter)

	if cfg.DatabaseURL != "" {
		audit, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Printf("audit mirror: %v (continuing without it)", err)
		} else {
			lifecycle.SetAuditSink(audit)
			defer audit.Close()
		}
	}

	catalog := []strategy.Strategy{strategy.NewMomentum(), strategy.NewPennyStocks()}
	tunable := make(map[string]strategy.ThresholdTunable, len(catalog))

	var entries []coordinator.Entry
	for _, strat := range catalog {
		if t, ok := strat.(strategy.ThresholdTunable); ok {
			tunable[strat.Name()] = t
			if override, ok := cfg.Thresholds[strat.Name()]; ok {
				t.ApplyThresholdOverride(override.GoldenMomentum, override.ExceptionalMomentum)
			}
		}

		if !config.StrategyEnabled(strat.Name(), false) {
			logger.Printf("strategy %s disabled, skipping", strat.Name())
			continue
		}

		r := runner.New(strat, mdClient, validate.NewPipeline(strat.ValidationConfig()), selector, exitengine.New(strat.ExitConfig()), lifecycle, cal, gateway, logger)
		entries = append(entries, coordinator.Entry{Name: strat.Name(), Runner: r})
	}

	watcher := config.NewConfigWatcher(configPath, cfg, logger)
	watcher.OnChange(func(old, new *config.Config) {
		for name, override := range new.Thresholds {
			if t, ok := tunable[name]; ok {
				t.ApplyThresholdOverride(override.GoldenMomentum, override.ExceptionalMomentum)
			}
		}
	})
	if err := watcher.Start(); err != nil {
		logger.Printf("config watcher: %v (continuing without hot-reload)", err)
	} else {
		defer watcher.Stop()
	}

	startupDelayMax := time.Duration(config.StartupDelaySecondsMax()) * time.Second
	coord := coordinator.New(entries, startupDelayMax, gracePeriod, logger)

	logger.Printf("starting with %d strategies enabled", len(entries))
	coord.Run(ctx)
	logger.Println("shutdown complete")
}

// buildGateway constructs the Store Gateway's DynamoDB client. An empty
// cfg.Store.Endpoint uses the SDK's default resolver (production
// DynamoDB); a non-empty one overrides BaseEndpoint for local testing.
func buildGateway(ctx context.Context, cfg *config.Config, logger *log.Logger) (*store.Gateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Store.Region))
	if err != nil {
		return nil, err
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Store.Endpoint != "" {
			o.BaseEndpoint = &cfg.Store.Endpoint
		}
	})

	return store.NewGateway(client, logger), nil
}
