package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offerwatch/internal/config"
	"offerwatch/internal/infrastructure/fetch"
	"offerwatch/internal/infrastructure/llm"
	"offerwatch/internal/infrastructure/scheduler"
	"offerwatch/internal/infrastructure/storage"
	"offerwatch/internal/infrastructure/telegram"
	"offerwatch/internal/logging"
	"offerwatch/internal/notify"
	"offerwatch/internal/reconcile"
	"offerwatch/internal/similarity"
	"offerwatch/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	monitor *usecase.Monitor
	store   *storage.SQLiteStore
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	llmClient := llm.NewClient(cfg.LLM, baseLogger.With("component", "llm"))
	oracle := similarity.NewOracle(llmClient, cfg.Monitor.SimilarityThreshold, baseLogger.With("component", "oracle"))
	reconciler := reconcile.New(oracle, cfg.Monitor.MaxHistoryAgeDays, baseLogger.With("component", "reconciler"))
	debouncer := notify.NewDebouncer(store, cfg.Notifications.MinInterval)
	notifier := telegram.NewNotifier(
		cfg.Notifications.Telegram.BotToken,
		cfg.Notifications.Telegram.ChatID,
		cfg.LLM.MaxRetries,
		cfg.LLM.RetryDelay,
		cfg.Notifications.Telegram.Timeout,
	)

	monitor := usecase.NewMonitor(usecase.MonitorDeps{
		Fetcher:    fetch.NewFetcher(nil, cfg.Monitor.FetchTimeout),
		Extractor:  llmClient,
		Evaluator:  llmClient,
		Reconciler: reconciler,
		Debouncer:  debouncer,
		Store:      store,
		Notifier:   notifier,
		Logger:     baseLogger.With("component", "monitor"),
		MaxRetries: cfg.LLM.MaxRetries,
		RetryDelay: cfg.LLM.RetryDelay,
	}, cfg.Sources)

	return &Application{cfg: cfg, monitor: monitor, store: store}, nil
}

// RunOnce performs a single pass over all sources and exits.
func (a *Application) RunOnce(ctx context.Context) error {
	defer a.store.Close()
	a.monitor.RunAll(ctx, time.Now())
	return nil
}

// Run starts the recurring scheduler and blocks until SIGINT/SIGTERM.
func (a *Application) Run(ctx context.Context) error {
	defer a.store.Close()

	driver := scheduler.NewTickerScheduler(a.cfg.Scheduler.CheckInterval)
	sched := usecase.NewScheduler(driver, a.monitor)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	return sched.Stop(ctx)
}
