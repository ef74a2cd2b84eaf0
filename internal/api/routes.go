package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-patterns/internal/api/handlers"
	"github.com/irfndi/celebrum-patterns/internal/logging"
	"github.com/irfndi/celebrum-patterns/internal/middleware"
	"github.com/irfndi/celebrum-patterns/internal/services"
)

// Dependencies are the services the HTTP layer routes to
type Dependencies struct {
	Scanner      *services.PatternScanner
	Validator    *services.MarketDataValidator
	Cache        handlers.ScanCache
	Redis        handlers.HealthChecker
	AdminAPIKey  string
	MaxBatchSize int
	Version      string
	Logger       *logrus.Logger
}

// SetupRoutes registers every endpoint on the router
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}

	router.Use(middleware.TelemetryMiddleware("/health", "/health/live"))
	router.Use(requestLogger(deps.Logger))

	healthHandler := handlers.NewHealthHandler(deps.Redis, deps.Version)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/health/live", healthHandler.LivenessCheck)

	patternHandler := handlers.NewPatternHandler(deps.Scanner, deps.Validator, deps.MaxBatchSize, deps.Logger)
	cacheHandler := handlers.NewCacheHandler(deps.Cache, deps.Logger)
	adminMiddleware := middleware.NewAdminMiddleware(deps.AdminAPIKey)

	v1 := router.Group("/api/v1")
	{
		patterns := v1.Group("/patterns")
		{
			patterns.POST("/scan", patternHandler.Scan)
			patterns.POST("/scan/batch", patternHandler.ScanBatch)
		}

		admin := v1.Group("/admin")
		admin.Use(adminMiddleware.RequireAdminAuth())
		{
			admin.GET("/cache", cacheHandler.GetCacheStats)
			admin.DELETE("/cache", cacheHandler.ClearCache)
		}
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		entry := logger.WithContext(c.Request.Context()).WithField("client_ip", c.ClientIP())
		logging.LogAPIRequest(entry, c.Request.Method, path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}
