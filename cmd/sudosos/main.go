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

	"github.com/gewis/sudosos-go/internal/app"
	catalogcache "github.com/gewis/sudosos-go/internal/catalog/cache"
	"github.com/gewis/sudosos-go/internal/catalog/containers"
	"github.com/gewis/sudosos-go/internal/catalog/pointsofsale"
	"github.com/gewis/sudosos-go/internal/catalog/products"
	"github.com/gewis/sudosos-go/internal/catalog/propagation"
	"github.com/gewis/sudosos-go/internal/catalog/visibility"
	platformcache "github.com/gewis/sudosos-go/internal/platform/cache"
	"github.com/gewis/sudosos-go/internal/platform/db"
	"github.com/gewis/sudosos-go/internal/shared"
	"github.com/gewis/sudosos-go/internal/transfers"
	"github.com/gewis/sudosos-go/internal/users"
	"github.com/gewis/sudosos-go/jobs"
	"github.com/gewis/sudosos-go/report"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platformcache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	var revCache *catalogcache.Cache
	if redisClient != nil {
		revCache = catalogcache.New(redisClient, cfg.CatalogCacheTTL)
	}

	audit := shared.NewAuditLogger(pool)

	userService := users.NewService(users.NewRepository(pool))
	resolver := visibility.NewResolver(userService)

	productService := products.NewService(products.NewRepository(pool), audit, revCache, logger)
	containerService := containers.NewService(containers.NewRepository(pool), productService, audit, revCache, logger)
	posService := pointsofsale.NewService(pointsofsale.NewRepository(pool), containerService, audit, revCache, logger)

	engine := propagation.NewEngine(containerService, posService, logger)
	productService.SetPropagation(engine)
	containerService.SetPropagation(engine)

	transferService := transfers.NewService(transfers.NewRepository(pool))

	reportClient := report.NewClient(cfg.GotenbergURL)
	reportHandler := report.NewHandler(reportClient, logger, productService, containerService, posService)

	var jobHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Actors:             userService,
		ProductHandler:     products.NewHandler(logger, productService),
		ContainerHandler:   containers.NewHandler(logger, containerService, resolver),
		PointOfSaleHandler: pointsofsale.NewHandler(logger, posService),
		UserHandler:        users.NewHandler(logger, userService),
		TransferHandler:    transfers.NewHandler(logger, transferService),
		ReportHandler:      reportHandler,
		JobHandler:         jobHandler,
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
