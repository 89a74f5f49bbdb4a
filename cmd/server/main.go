package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eduforge/exam-progression-service/internal/cache"
	"github.com/eduforge/exam-progression-service/internal/config"
	"github.com/eduforge/exam-progression-service/internal/handlers"
	"github.com/eduforge/exam-progression-service/internal/queue"
	"github.com/eduforge/exam-progression-service/internal/repositories/postgres"
	"github.com/eduforge/exam-progression-service/internal/services"
	"github.com/eduforge/exam-progression-service/internal/utils"
	"github.com/eduforge/exam-progression-service/internal/validator"
	"github.com/eduforge/exam-progression-service/pkg"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var logger utils.Logger
	if cfg.IsDevelopment() {
		logger = utils.NewDevelopmentLogger()
	} else {
		logger = utils.NewDefaultLogger()
	}
	slogger := utils.ToSlogLogger(logger)

	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := pkg.Migrate(db); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	repo := postgres.NewRepository(db)

	redisClient, err := pkg.NewRedisClient(cfg)
	var cacheSvc cache.CacheService
	var queueStore queue.Store
	if err != nil {
		logger.Warn("Redis unavailable, falling back to in-memory cache and queue", "error", err)
		cacheSvc = cache.NewMemoryCache()
		queueStore = queue.NewMemoryStore()
	} else {
		cacheSvc = cache.NewRedisCache(redisClient, slogger)
		queueStore = queue.NewRedisStore(redisClient)
	}

	publisher, err := cfg.Events.CreateEventPublisher(slogger)
	if err != nil {
		logger.Error("Failed to create event publisher", "error", err)
		os.Exit(1)
	}
	defer publisher.Close()

	v := validator.New()

	// The queue and the progress service reference each other: the
	// service enqueues failed writes, the queue replays them through the
	// service. The replay closure late-binds to break the cycle.
	var progressSvc services.ProgressService
	retryQueue := queue.NewRetryQueue(queueStore, func(ctx context.Context, entry *queue.Entry) error {
		return progressSvc.ReplayProgress(ctx, entry)
	}, logger, cfg.RetryDrainInterval)

	serviceManager := services.NewServiceManager(repo, cacheSvc, publisher, retryQueue, logger, v)
	progressSvc = serviceManager.Progress()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go retryQueue.Run(ctx)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(utils.LoggerMiddleware(logger))

	handlerManager := handlers.NewHandlerManager(serviceManager, handlers.NewHealthHandler(repo), logger)
	handlerManager.SetupRoutes(router, handlers.NewAuthMiddleware(cfg.Auth, logger))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", "error", err)
	}

	if err := repo.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
	}
	if err := cacheSvc.Close(); err != nil {
		logger.Error("Failed to close cache", "error", err)
	}
}
