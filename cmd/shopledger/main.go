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
	"github.com/shopledger/shopledger/internal/inventory"
	"github.com/shopledger/shopledger/internal/observability"
	"github.com/shopledger/shopledger/internal/payables"
	"github.com/shopledger/shopledger/internal/platform/cache"
	"github.com/shopledger/shopledger/internal/platform/db"
	"github.com/shopledger/shopledger/internal/procurement"
	"github.com/shopledger/shopledger/internal/reporting"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.Open(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns, MaxConnLifetime: cfg.PGConnLifetime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.Open(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		// Caches degrade to pass-through without Redis.
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	auditTrail := shared.NewAuditTrail(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	directoryService := directory.NewService(directory.NewRepository(dbpool), directory.NewCache(redisClient, cfg.DirectoryCacheTTL), logger)
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool))

	procurementService := procurement.NewService(
		procurement.NewRepository(dbpool),
		directoryService,
		auditTrail,
		procurement.ReceivingPolicy{AllowOverReceipt: cfg.AllowOverReceipt, AllowOverApproval: cfg.AllowOverApproval},
		logger,
	)
	payablesService := payables.NewService(payables.NewRepository(dbpool), directoryService, idempotencyStore, auditTrail, logger)
	reportingService := reporting.NewService(reporting.NewRepository(dbpool), directoryService, reporting.NewCache(redisClient, cfg.ReportCacheTTL), logger)

	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		PayablesHandler:    payables.NewHandler(logger, payablesService),
		ReportingHandler:   reporting.NewHandler(logger, reportingService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		DirectoryHandler:   directory.NewHandler(logger, directoryService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		ReportCache:        reportingService,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
