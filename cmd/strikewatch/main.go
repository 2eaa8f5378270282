package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"github.com/rewired-gh/strikewatch/internal/aggregator"
	"github.com/rewired-gh/strikewatch/internal/config"
	"github.com/rewired-gh/strikewatch/internal/fetch"
	"github.com/rewired-gh/strikewatch/internal/logger"
	"github.com/rewired-gh/strikewatch/internal/sources"
	"github.com/rewired-gh/strikewatch/internal/statusapi"
	"github.com/rewired-gh/strikewatch/internal/storage"
	"github.com/rewired-gh/strikewatch/internal/telegram"
	"github.com/rewired-gh/strikewatch/internal/telemetry"
)

var (
	configPath = flag.String("config", "", "Path to configuration file (defaults and environment only when empty)")
	once       = flag.Bool("once", false, "Run a single cycle and exit, even when a schedule is configured")
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if *configPath != "" {
		logger.Info("Configuration loaded from %s", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics must be installed before any instrument is created
	tel, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Metrics.ServiceName,
		OTLPEndpoint:   cfg.Metrics.OTLPEndpoint,
		ExportInterval: cfg.Metrics.ExportInterval,
	})
	if err != nil {
		logger.Fatal("Failed to initialize metrics: %v", err)
	}

	r, err := newRunner(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize: %v", err)
	}
	r.metrics = tel

	var runErr error
	if *once || cfg.Schedule.Cron == "" {
		runErr = r.cycle(ctx)
		r.logMetrics(ctx)
	} else if runErr = r.daemon(ctx, cfg); runErr != nil {
		logger.Error("Daemon stopped: %v", runErr)
	} else {
		logger.Info("Service stopped")
	}

	if err := tel.Shutdown(context.Background()); err != nil {
		logger.Warn("Failed to flush metrics: %v", err)
	}
	if runErr != nil {
		stop()
		os.Exit(1)
	}
}

// runner owns everything a cycle needs
type runner struct {
	agg       *aggregator.Aggregator
	store     *storage.Storage
	tracker   *statusapi.Tracker
	notifier  *telegram.Client
	metrics   *telemetry.Telemetry
	threshold int
}

func newRunner(cfg *config.Config) (*runner, error) {
	client := fetch.NewClient(fetch.Config{
		Timeout:        cfg.HTTP.Timeout,
		MaxRetries:     cfg.HTTP.MaxRetries,
		RetryDelayBase: cfg.HTTP.RetryDelayBase,
		UserAgent:      cfg.HTTP.UserAgent,
	})

	srcs, err := sources.FromConfig(cfg.Sources, client)
	if err != nil {
		return nil, fmt.Errorf("failed to build sources: %w", err)
	}

	store := storage.New(cfg.Storage.FilePath, 0, 0)
	agg := aggregator.New(srcs, store, aggregator.Config{
		Weights:              cfg.Aggregator.Weights,
		ElevatedThreshold:    cfg.Aggregator.ElevatedThreshold,
		DisplayHistoryLength: cfg.Aggregator.DisplayHistoryLength,
		Trend:                cfg.Trend,
	})
	if cfg.Storage.LedgerEnabled {
		agg.WithLedger(&storage.Ledger{Dir: cfg.Storage.LedgerDir})
		logger.Debug("Run ledger enabled under %s", cfg.Storage.LedgerDir)
	}

	r := &runner{
		agg:       agg,
		store:     store,
		tracker:   statusapi.NewTracker(),
		threshold: cfg.Telegram.AlertThreshold,
	}

	if cfg.Telegram.Enabled {
		r.notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	logger.Info("Initialized %d sources, document at %s", len(srcs), store.Path())
	return r, nil
}

// cycle runs once and reports the outcome. Notification failures are logged only.
func (r *runner) cycle(ctx context.Context) error {
	start := time.Now()
	res, err := r.agg.Run(ctx)
	if err != nil {
		failures, since := r.tracker.Failure(err, time.Now())
		logger.Error("Run failed: %v", err)
		if failures == 1 && r.notifier != nil && !errors.Is(err, context.Canceled) {
			if sendErr := r.notifier.SendError(err, failures, since); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return err
	}

	recovered, since := r.tracker.Success(res.RunID, time.Now())
	logger.Info("Run %s completed in %v: total risk %d, %d elevated",
		res.RunID, time.Since(start).Round(time.Millisecond), res.State.Total.Risk, res.State.Total.ElevatedCount)

	if r.notifier == nil {
		return nil
	}
	if recovered > 0 {
		if sendErr := r.notifier.SendRecovery(recovered, since, res.State); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
	if telegram.ShouldAlert(res.Previous, res.State, r.threshold) {
		if sendErr := r.notifier.SendAlert(res.Previous, res.State); sendErr != nil {
			logger.Warn("Failed to send alert to Telegram: %v", sendErr)
		}
	}
	return nil
}

// daemon runs a cycle immediately and then on every schedule tick until ctx is done.
// Overlapping ticks are skipped.
func (r *runner) daemon(ctx context.Context, cfg *config.Config) error {
	cronLogger := cron.PrintfLogger(cronPrintf{})
	scheduler := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	if _, err := scheduler.AddFunc(cfg.Schedule.Cron, func() { _ = r.cycle(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule %q: %w", cfg.Schedule.Cron, err)
	}

	serverErr := make(chan error, 1)
	if cfg.Status.Enabled {
		go func() {
			serverErr <- statusapi.Serve(ctx, cfg.Status.ListenAddr, r.statusRouter())
		}()
	}

	logger.Info("Starting scheduled runs (cron: %s)", cfg.Schedule.Cron)
	_ = r.cycle(ctx)
	scheduler.Start()

	var err error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, cleaning up...")
	case err = <-serverErr:
		if err != nil {
			err = fmt.Errorf("status server: %w", err)
		}
	}

	// Wait for an in-flight run to finish
	<-scheduler.Stop().Done()
	return err
}

func (r *runner) statusRouter() http.Handler {
	if r.metrics == nil {
		return statusapi.NewRouter(r.store, r.tracker, nil)
	}
	return statusapi.NewRouter(r.store, r.tracker, r.metrics)
}

// logMetrics writes the counters of a one-shot run at debug level
func (r *runner) logMetrics(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	counters, err := r.metrics.Snapshot(ctx)
	if err != nil {
		logger.Warn("Failed to read metrics: %v", err)
		return
	}
	for _, c := range counters {
		logger.Debug("metric %s%v = %d", c.Name, c.Attributes, c.Value)
	}
}

// cronPrintf routes scheduler messages to the application logger
type cronPrintf struct{}

func (cronPrintf) Printf(format string, args ...interface{}) {
	logger.Debug(format, args...)
}
