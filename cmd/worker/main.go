package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/barstock/internal/app"
	"github.com/odyssey-erp/barstock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/barstock/internal/jobs"
	"github.com/odyssey-erp/barstock/internal/platform/db"
	"github.com/odyssey-erp/barstock/internal/shared"
	"github.com/odyssey-erp/barstock/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// Scans bypass the read cache.
	inventoryService := inventory.NewService(inventory.NewRepository(pool), nil, inventory.ServiceConfig{Logger: logger})
	metrics := jobmetrics.NewMetrics(nil)

	lowStockJob := jobs.NewLowStockScanJob(inventoryService, logger, metrics)
	prebatchJob := jobs.NewPrebatchExpiryScanJob(inventoryService, logger, metrics)
	cleanupJob := jobs.NewIdempotencyCleanupJob(shared.NewIdempotencyStore(pool), logger, metrics)

	now := time.Now().UTC()
	lowStockTask, err := jobs.NewLowStockScanTask(now)
	if err != nil {
		logger.Error("build low stock task", slog.Any("error", err))
		os.Exit(1)
	}
	prebatchTask, err := jobs.NewPrebatchExpiryScanTask(now)
	if err != nil {
		logger.Error("build prebatch task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Concurrency: cfg.WorkerConcurrency,
		Logger:      logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLowStockScan, Handler: lowStockJob.Handle},
			{Type: jobs.TaskPrebatchExpiryScan, Handler: prebatchJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LowStockScanCron, Task: lowStockTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.PrebatchScanCron, Task: prebatchTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "15 4 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
