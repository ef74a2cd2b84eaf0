package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/irfndi/celebrum-patterns/internal/cache"
	"github.com/irfndi/celebrum-patterns/internal/patterns"
	"github.com/irfndi/celebrum-patterns/internal/services"
	"github.com/irfndi/celebrum-patterns/internal/telemetry"
)

type Config struct {
	Environment string                    `mapstructure:"environment"`
	LogLevel    string                    `mapstructure:"log_level"`
	Server      ServerConfig              `mapstructure:"server"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Patterns    PatternsConfig            `mapstructure:"patterns"`
	Scoring     ScoringConfig             `mapstructure:"scoring"`
	Scanner     ScannerConfig             `mapstructure:"scanner"`
	Telemetry   telemetry.TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBatchSize    int           `mapstructure:"max_batch_size"`
	AdminAPIKey     string        `mapstructure:"admin_api_key" json:"-" yaml:"-"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password" json:"-" yaml:"-"`
	DB       int    `mapstructure:"db"`
}

// PatternsConfig holds the default detector thresholds
type PatternsConfig struct {
	OrderBlock   patterns.OrderBlockConfig   `mapstructure:"order_block"`
	FairValueGap patterns.FairValueGapConfig `mapstructure:"fair_value_gap"`
	BreakerBlock patterns.BreakerBlockConfig `mapstructure:"breaker_block"`
	SwingWindow  int                         `mapstructure:"swing_window"`
}

type ScoringConfig struct {
	Weights map[string]float64 `mapstructure:"weights"`
}

type ScannerConfig struct {
	// Workers 0 sizes the batch pool from host CPU and memory
	Workers       int                              `mapstructure:"workers"`
	TopN          int                              `mapstructure:"top_n"`
	MinStrength   float64                          `mapstructure:"min_strength"`
	MinRiskReward float64                          `mapstructure:"min_risk_reward"`
	CacheEnabled  bool                             `mapstructure:"cache_enabled"`
	CacheTTL      time.Duration                    `mapstructure:"cache_ttl"`
	Breaker       cache.CircuitBreakerConfig       `mapstructure:"breaker"`
	Resources     services.ResourceOptimizerConfig `mapstructure:"resources"`
}

// Load reads config.yaml from ./configs or the working directory, then
// applies environment overrides such as SCANNER_WORKERS.
func Load() (*Config, error) {
	return load("")
}

// LoadFile reads the given config file instead of searching for one
func LoadFile(path string) (*Config, error) {
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("server.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects values no component can work with
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be between 1 and 65535, got %d", c.Server.Port)
	check(c.Server.MaxBatchSize >= 1, "server.max_batch_size must be at least 1, got %d", c.Server.MaxBatchSize)

	ob := c.Patterns.OrderBlock
	check(ob.MinBodySizeFactor >= 0, "patterns.order_block.min_body_size_factor must not be negative")
	check(ob.MinMoveAfterFactor >= 0, "patterns.order_block.min_move_after_factor must not be negative")
	check(ob.ConfirmationCandles >= 0, "patterns.order_block.confirmation_candles must not be negative")
	check(ob.RiskRewardTarget >= 0, "patterns.order_block.risk_reward_target must not be negative")

	fvg := c.Patterns.FairValueGap
	check(fvg.MinGapFactor >= 0, "patterns.fair_value_gap.min_gap_factor must not be negative")
	check(fvg.ATRPeriod >= 0, "patterns.fair_value_gap.atr_period must not be negative")
	check(fvg.StopATRFactor >= 0, "patterns.fair_value_gap.stop_atr_factor must not be negative")

	bb := c.Patterns.BreakerBlock
	check(bb.MinBreakBodyFactor >= 0, "patterns.breaker_block.min_break_body_factor must not be negative")
	check(bb.MaxLookback >= 0, "patterns.breaker_block.max_lookback must not be negative")
	check(bb.RetestLookback >= 0, "patterns.breaker_block.retest_lookback must not be negative")
	check(bb.RetestThreshold >= 0, "patterns.breaker_block.retest_threshold must not be negative")

	check(c.Patterns.SwingWindow >= 1, "patterns.swing_window must be at least 1, got %d", c.Patterns.SwingWindow)

	for name, w := range c.Scoring.Weights {
		check(w >= 0, "scoring.weights.%s must not be negative, got %v", name, w)
	}

	check(c.Scanner.Workers >= 0, "scanner.workers must not be negative, got %d", c.Scanner.Workers)
	res := c.Scanner.Resources
	check(res.MinWorkers >= 1 && res.MaxWorkers >= res.MinWorkers, "scanner.resources needs 1 <= min_workers <= max_workers, got %d..%d", res.MinWorkers, res.MaxWorkers)
	check(c.Scanner.TopN >= 0, "scanner.top_n must not be negative, got %d", c.Scanner.TopN)
	check(c.Scanner.MinStrength >= 0 && c.Scanner.MinStrength <= 1, "scanner.min_strength must be within [0,1], got %v", c.Scanner.MinStrength)
	check(c.Scanner.MinRiskReward >= 0, "scanner.min_risk_reward must not be negative")
	check(!c.Scanner.CacheEnabled || c.Scanner.CacheTTL > 0, "scanner.cache_ttl must be positive when the cache is enabled")

	check(c.Telemetry.SampleRate >= 0 && c.Telemetry.SampleRate <= 1, "telemetry.sample_rate must be within [0,1], got %v", c.Telemetry.SampleRate)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// RedisAddr returns host:port for the Redis client
func (r RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// ScanOptions converts the pattern and scanner sections into scanner defaults.
// patterns.swing_window drives every detector.
func (c *Config) ScanOptions() services.ScanOptions {
	ob, bb := c.Patterns.OrderBlock, c.Patterns.BreakerBlock
	ob.SwingWindow = c.Patterns.SwingWindow
	bb.Candidates.SwingWindow = c.Patterns.SwingWindow
	return services.ScanOptions{
		OrderBlock:    ob,
		FairValueGap:  c.Patterns.FairValueGap,
		BreakerBlock:  bb,
		SwingWindow:   c.Patterns.SwingWindow,
		MinStrength:   c.Scanner.MinStrength,
		MinRiskReward: c.Scanner.MinRiskReward,
		TopN:          c.Scanner.TopN,
	}
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_batch_size", 50)
	v.SetDefault("server.admin_api_key", "")

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Detectors
	ob := patterns.DefaultOrderBlockConfig()
	v.SetDefault("patterns.order_block.min_body_size_factor", ob.MinBodySizeFactor)
	v.SetDefault("patterns.order_block.min_move_after_factor", ob.MinMoveAfterFactor)
	v.SetDefault("patterns.order_block.confirmation_candles", ob.ConfirmationCandles)
	v.SetDefault("patterns.order_block.strength_threshold", ob.StrengthThreshold)
	v.SetDefault("patterns.order_block.risk_reward_target", ob.RiskRewardTarget)
	v.SetDefault("patterns.order_block.swing_window", ob.SwingWindow)

	fvg := patterns.DefaultFairValueGapConfig()
	v.SetDefault("patterns.fair_value_gap.min_gap_factor", fvg.MinGapFactor)
	v.SetDefault("patterns.fair_value_gap.strength_threshold", fvg.StrengthThreshold)
	v.SetDefault("patterns.fair_value_gap.max_results", fvg.MaxResults)
	v.SetDefault("patterns.fair_value_gap.atr_period", fvg.ATRPeriod)
	v.SetDefault("patterns.fair_value_gap.stop_atr_factor", fvg.StopATRFactor)

	bb := patterns.DefaultBreakerBlockConfig()
	v.SetDefault("patterns.breaker_block.candidates.min_body_size_factor", bb.Candidates.MinBodySizeFactor)
	v.SetDefault("patterns.breaker_block.candidates.min_move_after_factor", bb.Candidates.MinMoveAfterFactor)
	v.SetDefault("patterns.breaker_block.candidates.confirmation_candles", bb.Candidates.ConfirmationCandles)
	v.SetDefault("patterns.breaker_block.candidates.strength_threshold", bb.Candidates.StrengthThreshold)
	v.SetDefault("patterns.breaker_block.candidates.risk_reward_target", bb.Candidates.RiskRewardTarget)
	v.SetDefault("patterns.breaker_block.candidates.swing_window", bb.Candidates.SwingWindow)
	v.SetDefault("patterns.breaker_block.min_break_body_factor", bb.MinBreakBodyFactor)
	v.SetDefault("patterns.breaker_block.max_lookback", bb.MaxLookback)
	v.SetDefault("patterns.breaker_block.retest_lookback", bb.RetestLookback)
	v.SetDefault("patterns.breaker_block.retest_threshold", bb.RetestThreshold)
	v.SetDefault("patterns.breaker_block.strength_threshold", bb.StrengthThreshold)
	v.SetDefault("patterns.breaker_block.risk_reward_target", bb.RiskRewardTarget)

	v.SetDefault("patterns.swing_window", patterns.DefaultSwingWindow)

	// Scoring
	for name, w := range services.DefaultConfluenceWeights() {
		v.SetDefault("scoring.weights."+name, w)
	}

	// Scanner
	v.SetDefault("scanner.workers", 4)
	v.SetDefault("scanner.top_n", 10)
	v.SetDefault("scanner.min_strength", 0.0)
	v.SetDefault("scanner.min_risk_reward", 0.0)
	v.SetDefault("scanner.cache_enabled", true)
	v.SetDefault("scanner.cache_ttl", "5m")
	breaker := cache.DefaultCircuitBreakerConfig()
	v.SetDefault("scanner.breaker.failure_threshold", breaker.FailureThreshold)
	v.SetDefault("scanner.breaker.success_threshold", breaker.SuccessThreshold)
	v.SetDefault("scanner.breaker.open_timeout", breaker.OpenTimeout.String())
	v.SetDefault("scanner.breaker.max_probes", breaker.MaxProbes)
	res := services.DefaultResourceOptimizerConfig()
	v.SetDefault("scanner.resources.min_workers", res.MinWorkers)
	v.SetDefault("scanner.resources.max_workers", res.MaxWorkers)
	v.SetDefault("scanner.resources.cpu_threshold", res.CPUThreshold)
	v.SetDefault("scanner.resources.memory_threshold", res.MemoryThreshold)
	v.SetDefault("scanner.resources.sample_interval", res.SampleInterval.String())

	// Telemetry
	tel := telemetry.DefaultConfig()
	v.SetDefault("telemetry.enabled", tel.Enabled)
	v.SetDefault("telemetry.exporter", tel.Exporter)
	v.SetDefault("telemetry.service_name", tel.ServiceName)
	v.SetDefault("telemetry.service_version", tel.ServiceVersion)
	v.SetDefault("telemetry.environment", tel.Environment)
	v.SetDefault("telemetry.sample_rate", tel.SampleRate)
	v.SetDefault("telemetry.batch_timeout", tel.BatchTimeout.String())
	v.SetDefault("telemetry.max_export_batch", tel.MaxExportBatch)
	v.SetDefault("telemetry.max_queue_size", tel.MaxQueueSize)
}
