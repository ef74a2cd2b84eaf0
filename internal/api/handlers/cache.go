package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-patterns/internal/cache"
)

// ScanCache is the part of the scan result cache exposed to operators
type ScanCache interface {
	GetStats() cache.SignalCacheStats
	BreakerState() cache.CircuitBreakerState
	Clear(ctx context.Context) error
}

// CacheHandler handles cache monitoring endpoints
type CacheHandler struct {
	cache  ScanCache
	logger *logrus.Logger
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(scanCache ScanCache, logger *logrus.Logger) *CacheHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &CacheHandler{
		cache:  scanCache,
		logger: logger,
	}
}

// GetCacheStats returns hit/miss counters and the circuit breaker state
func (h *CacheHandler) GetCacheStats(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"enabled": false,
		})
		return
	}

	stats := h.cache.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"enabled":  true,
		"data":     stats,
		"hit_rate": stats.HitRate(),
		"breaker":  h.cache.BreakerState().String(),
	})
}

// ClearCache drops every cached scan result
func (h *CacheHandler) ClearCache(c *gin.Context) {
	if h.cache == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Scan cache is disabled",
		})
		return
	}

	if err := h.cache.Clear(c.Request.Context()); err != nil {
		h.logger.WithContext(c.Request.Context()).WithError(err).Error("Failed to clear scan cache")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to clear scan cache",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Scan cache cleared",
	})
}
