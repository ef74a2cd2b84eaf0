package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-patterns/internal/api"
	"github.com/irfndi/celebrum-patterns/internal/api/handlers"
	"github.com/irfndi/celebrum-patterns/internal/cache"
	"github.com/irfndi/celebrum-patterns/internal/config"
	"github.com/irfndi/celebrum-patterns/internal/database"
	"github.com/irfndi/celebrum-patterns/internal/logging"
	"github.com/irfndi/celebrum-patterns/internal/services"
	"github.com/irfndi/celebrum-patterns/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "celebrum-patterns: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := cfg.Telemetry
	telemetryCfg.Environment = cfg.Environment
	provider, err := telemetry.InitTelemetry(ctx, telemetryCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}
	}()

	var (
		redisHealth handlers.HealthChecker
		scanCache   *cache.SignalCache
	)
	if cfg.Redis.Enabled {
		redisClient, err := database.NewRedisConnection(ctx, cfg.Redis, logger)
		if err != nil {
			// scans still work without the cache
			logger.WithError(err).Warn("Redis unavailable, scan cache disabled")
		} else {
			defer func() { _ = redisClient.Close() }()
			redisHealth = redisClient
			if cfg.Scanner.CacheEnabled {
				scanCache = cache.NewSignalCacheWithBreaker(redisClient.Client, cfg.Scanner.CacheTTL, cfg.Scanner.Breaker, logger)
			}
		}
	}

	validator := services.NewMarketDataValidator(logger)
	scorer := services.NewConfluenceScorer(cfg.Scoring.Weights, logger)
	scannerCfg := services.PatternScannerConfig{
		Defaults:  cfg.ScanOptions(),
		Workers:   cfg.Scanner.Workers,
		Resources: cfg.Scanner.Resources,
	}
	scanner := services.NewPatternScanner(scannerCfg, scorer, validator, scanCache, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	deps := api.Dependencies{
		Scanner:      scanner,
		Validator:    validator,
		Redis:        redisHealth,
		AdminAPIKey:  cfg.Server.AdminAPIKey,
		MaxBatchSize: cfg.Server.MaxBatchSize,
		Version:      telemetry.ServiceVersion,
		Logger:       logger,
	}
	if scanCache != nil {
		deps.Cache = scanCache
	}
	api.SetupRoutes(router, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logging.LogStartup(logger, "celebrum-patterns", telemetry.ServiceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logging.LogShutdown(logger, "celebrum-patterns", "signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	if scanCache != nil {
		scanCache.LogStats()
	}
	logger.WithFields(logrus.Fields{"port": cfg.Server.Port}).Info("Server exited")
	return nil
}
