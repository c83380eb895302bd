package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/gewis/sudosos-go/internal/app"
	catalogcache "github.com/gewis/sudosos-go/internal/catalog/cache"
	"github.com/gewis/sudosos-go/internal/catalog/containers"
	"github.com/gewis/sudosos-go/internal/catalog/pointsofsale"
	"github.com/gewis/sudosos-go/internal/catalog/products"
	"github.com/gewis/sudosos-go/internal/catalog/propagation"
	platformcache "github.com/gewis/sudosos-go/internal/platform/cache"
	"github.com/gewis/sudosos-go/internal/platform/db"
	"github.com/gewis/sudosos-go/internal/shared"
	"github.com/gewis/sudosos-go/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	revCache := catalogcache.New(redisClient, cfg.CatalogCacheTTL)
	audit := shared.NewAuditLogger(pool)

	productService := products.NewService(products.NewRepository(pool), audit, revCache, logger)
	containerService := containers.NewService(containers.NewRepository(pool), productService, audit, revCache, logger)
	posService := pointsofsale.NewService(pointsofsale.NewRepository(pool), containerService, audit, revCache, logger)

	engine := propagation.NewEngine(containerService, posService, logger)
	productService.SetPropagation(engine)
	containerService.SetPropagation(engine)

	sweepJob := jobs.NewCatalogSweepJob(engine, logger)
	sweepTask, err := jobs.NewCatalogSweepTask(jobs.CatalogSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCatalogSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepSchedule, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.String("sweep_schedule", cfg.SweepSchedule))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
