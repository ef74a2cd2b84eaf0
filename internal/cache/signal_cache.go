package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-patterns/internal/models"
)

// SignalCacheStats is a snapshot of cache performance counters
type SignalCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// HitRate returns hits as a percentage of lookups
func (s SignalCacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// SignalCache stores pattern scan results in Redis keyed by the exact candle
// window they were computed from.
type SignalCache struct {
	redis   *redis.Client
	ttl     time.Duration
	prefix  string
	logger  *logrus.Logger
	breaker *CircuitBreaker

	hits     atomic.Int64
	misses   atomic.Int64
	sets     atomic.Int64
	failures atomic.Int64
}

// NewSignalCache creates a new Redis-based scan result cache guarded by a
// circuit breaker with default settings.
func NewSignalCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *SignalCache {
	return NewSignalCacheWithBreaker(redisClient, ttl, DefaultCircuitBreakerConfig(), logger)
}

// NewSignalCacheWithBreaker creates a scan result cache with explicit
// circuit breaker settings.
func NewSignalCacheWithBreaker(redisClient *redis.Client, ttl time.Duration, breaker CircuitBreakerConfig, logger *logrus.Logger) *SignalCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &SignalCache{
		redis:   redisClient,
		ttl:     ttl,
		prefix:  "pattern_scan:",
		logger:  logger,
		breaker: NewCircuitBreaker("redis_scan_cache", breaker, logger),
	}
}

// WindowHash fingerprints a candle window together with an optional salt,
// typically the serialised scan options.
func WindowHash(candles []models.Candle, salt string) string {
	d := xxhash.New()
	buf := make([]byte, 8)
	write := func(v uint64) {
		binary.LittleEndian.PutUint64(buf, v)
		_, _ = d.Write(buf)
	}

	for _, c := range candles {
		write(uint64(c.Timestamp.UnixNano()))
		write(math.Float64bits(c.Open))
		write(math.Float64bits(c.High))
		write(math.Float64bits(c.Low))
		write(math.Float64bits(c.Close))
		write(math.Float64bits(c.Volume))
	}
	_, _ = d.WriteString(salt)

	return strconv.FormatUint(d.Sum64(), 16)
}

// Key builds the cache key pattern_scan:{symbol}:{timeframe}:{windowHash}
func (c *SignalCache) Key(symbol, timeframe, windowHash string) string {
	return fmt.Sprintf("%s%s:%s:%s", c.prefix, symbol, timeframe, windowHash)
}

// Get loads the cached value for key into dest. Any Redis or decoding
// failure counts as a miss.
func (c *SignalCache) Get(ctx context.Context, key string, dest interface{}) bool {
	var data []byte
	found := false
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.redis.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		found = err == nil
		return err
	})
	if err == nil && !found {
		c.misses.Add(1)
		return false
	}
	if err != nil {
		c.failures.Add(1)
		c.misses.Add(1)
		c.logger.WithError(err).WithField("key", key).Warn("Redis error reading scan cache")
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.failures.Add(1)
		c.misses.Add(1)
		c.logger.WithError(err).WithField("key", key).Warn("Failed to decode cached scan result")
		return false
	}

	c.hits.Add(1)
	return true
}

// Set stores value under key with the configured TTL
func (c *SignalCache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.failures.Add(1)
		return fmt.Errorf("failed to encode scan result: %w", err)
	}

	err = c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.redis.Set(ctx, key, data, c.ttl).Err()
	})
	if err != nil {
		c.failures.Add(1)
		return fmt.Errorf("failed to cache scan result %s: %w", key, err)
	}

	c.sets.Add(1)
	c.logger.WithFields(logrus.Fields{
		"key": key,
		"ttl": c.ttl.String(),
	}).Debug("Cached scan result")
	return nil
}

// BreakerState reports whether Redis calls are currently short-circuited
func (c *SignalCache) BreakerState() CircuitBreakerState {
	return c.breaker.GetState()
}

// GetStats returns current cache statistics
func (c *SignalCache) GetStats() SignalCacheStats {
	return SignalCacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Sets:   c.sets.Load(),
		Errors: c.failures.Load(),
	}
}

// LogStats logs current cache performance statistics
func (c *SignalCache) LogStats() {
	stats := c.GetStats()
	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"errors":   stats.Errors,
		"hit_rate": fmt.Sprintf("%.2f%%", stats.HitRate()),
		"breaker":  c.breaker.GetState().String(),
	}).Info("Pattern scan cache stats")
}

// Clear removes all cached scan results
func (c *SignalCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithField("count", len(keys)).Info("Cleared pattern scan cache")
	return nil
}
