package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/shopledger/shopledger/internal/app"
	"github.com/shopledger/shopledger/internal/directory"
	"github.com/shopledger/shopledger/internal/notify"
	"github.com/shopledger/shopledger/internal/observability"
	"github.com/shopledger/shopledger/internal/payables"
	"github.com/shopledger/shopledger/internal/platform/cache"
	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/reporting"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.Open(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnLifetime})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	directoryService := directory.NewService(directory.NewRepository(pool), directory.NewCache(redisClient, cfg.DirectoryCacheTTL), logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	payablesService := payables.NewService(payables.NewRepository(pool), directoryService, idempotencyStore, shared.NewAuditTrail(pool), logger)
	reportingService := reporting.NewService(reporting.NewRepository(pool), directoryService, reporting.NewCache(redisClient, cfg.ReportCacheTTL), logger)

	var notifier notify.Notifier = notify.Log{Logger: logger}
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Error("init telegram notifier", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = tg
	}

	registry := observability.NewMetrics()
	metrics := registry.Jobs()
	lock := cache.NewLock(redisClient)

	overdueJob := jobs.NewMarkOverdueJob(payablesService, reportingService, lock, logger, metrics)
	remindersJob := jobs.NewRemindersJob(payablesService, notifier, lock, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(idempotencyStore, logger, metrics)

	overdueTask, err := jobs.NewMarkOverdueTask(time.Time{})
	if err != nil {
		logger.Error("build overdue task", slog.Any("error", err))
		os.Exit(1)
	}
	remindersTask, err := jobs.NewRemindersTask(time.Time{})
	if err != nil {
		logger.Error("build reminders task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyTTL)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPayablesMarkOverdue, Handler: overdueJob.Handle},
			{Type: jobs.TaskPayablesReminders, Handler: remindersJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.OverdueCron, Task: overdueTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.RemindersCron, Task: remindersTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: registry.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
