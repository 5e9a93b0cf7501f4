package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/barstock/internal/app"
	"github.com/odyssey-erp/barstock/internal/inventory"
	"github.com/odyssey-erp/barstock/internal/observability"
	"github.com/odyssey-erp/barstock/internal/platform/cache"
	"github.com/odyssey-erp/barstock/internal/platform/db"
	"github.com/odyssey-erp/barstock/internal/production"
	"github.com/odyssey-erp/barstock/internal/recipes"
	"github.com/odyssey-erp/barstock/internal/sales"
	"github.com/odyssey-erp/barstock/internal/shared"
	"github.com/odyssey-erp/barstock/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var readCache *cache.Cache
	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, serving reads uncached", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		readCache = cache.New(redisClient, cfg.CacheTTL)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	inventoryConfig := inventory.ServiceConfig{Metrics: metrics, Logger: logger}
	recipesConfig := recipes.ServiceConfig{Logger: logger}
	if readCache != nil {
		inventoryConfig.Cache = readCache.Scoped("stock")
		recipesConfig.Cache = readCache.Scoped("recipes")
	}
	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, inventoryConfig)
	recipesService := recipes.NewService(recipes.NewRepository(dbpool), auditLogger, recipesConfig)
	salesService := sales.NewService(recipesService, inventoryService, logger)
	productionService := production.NewService(inventoryService, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		InventoryHandler:  inventory.NewHandler(logger, inventoryService),
		RecipesHandler:    recipes.NewHandler(logger, recipesService),
		SalesHandler:      sales.NewHandler(logger, salesService, cfg.MaxUploadBytes),
		ProductionHandler: production.NewHandler(logger, productionService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
