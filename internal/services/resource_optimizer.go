package services

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// ResourceOptimizerConfig bounds the batch worker pool when it is sized
// from host resources
type ResourceOptimizerConfig struct {
	MinWorkers      int           `mapstructure:"min_workers"`
	MaxWorkers      int           `mapstructure:"max_workers"`
	CPUThreshold    float64       `mapstructure:"cpu_threshold"`
	MemoryThreshold float64       `mapstructure:"memory_threshold"`
	SampleInterval  time.Duration `mapstructure:"sample_interval"`
}

// DefaultResourceOptimizerConfig returns default resource limits
func DefaultResourceOptimizerConfig() ResourceOptimizerConfig {
	return ResourceOptimizerConfig{
		MinWorkers:      2,
		MaxWorkers:      20,
		CPUThreshold:    80.0,
		MemoryThreshold: 85.0,
		SampleInterval:  30 * time.Second,
	}
}

// OptimalConcurrency is the last worker recommendation and the host load
// it was based on
type OptimalConcurrency struct {
	MaxWorkers  int       `json:"max_workers"`
	CPUUsage    float64   `json:"cpu_usage"`
	MemoryUsage float64   `json:"memory_usage"`
	Throttled   bool      `json:"throttled"`
	SampledAt   time.Time `json:"sampled_at"`
}

type hostSampler func(ctx context.Context) (cpuPercent, memPercent float64, err error)

// ResourceOptimizer recommends how many scans to run at once. The base is
// twice the CPU count, reduced under CPU or memory pressure.
type ResourceOptimizer struct {
	config   ResourceOptimizerConfig
	cpuCores int
	sample   hostSampler
	now      func() time.Time
	logger   *logrus.Logger

	mu      sync.Mutex
	current OptimalConcurrency
}

// NewResourceOptimizer creates a new resource optimizer
func NewResourceOptimizer(config ResourceOptimizerConfig, logger *logrus.Logger) *ResourceOptimizer {
	defaults := DefaultResourceOptimizerConfig()
	if config.MinWorkers < 1 {
		config.MinWorkers = defaults.MinWorkers
	}
	if config.MaxWorkers < config.MinWorkers {
		config.MaxWorkers = max(defaults.MaxWorkers, config.MinWorkers)
	}
	if config.CPUThreshold <= 0 {
		config.CPUThreshold = defaults.CPUThreshold
	}
	if config.MemoryThreshold <= 0 {
		config.MemoryThreshold = defaults.MemoryThreshold
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = defaults.SampleInterval
	}
	if logger == nil {
		logger = logrus.New()
	}

	cores := runtime.NumCPU()
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		cores = n
	}

	return &ResourceOptimizer{
		config:   config,
		cpuCores: cores,
		sample:   sampleHost,
		now:      time.Now,
		logger:   logger,
	}
}

func sampleHost(ctx context.Context) (float64, float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, err
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	var cpuPercent float64
	if len(percents) > 0 {
		cpuPercent = percents[0]
	}
	return cpuPercent, vm.UsedPercent, nil
}

// Workers returns the recommended pool size, resampling the host at most
// once per SampleInterval. Sampling failures fall back to the unthrottled
// base size.
func (ro *ResourceOptimizer) Workers(ctx context.Context) int {
	ro.mu.Lock()
	defer ro.mu.Unlock()

	now := ro.now()
	if !ro.current.SampledAt.IsZero() && now.Sub(ro.current.SampledAt) < ro.config.SampleInterval {
		return ro.current.MaxWorkers
	}

	cpuPercent, memPercent, err := ro.sample(ctx)
	if err != nil {
		ro.logger.WithError(err).Debug("Host resource sampling failed")
		cpuPercent, memPercent = 0, 0
	}

	workers := clampInt(ro.cpuCores*2, ro.config.MinWorkers, ro.config.MaxWorkers)
	throttled := false
	if memPercent > ro.config.MemoryThreshold {
		workers /= 2
		throttled = true
	}
	if cpuPercent > ro.config.CPUThreshold {
		workers = workers * 3 / 4
		throttled = true
	}
	workers = clampInt(workers, ro.config.MinWorkers, ro.config.MaxWorkers)

	if throttled && workers != ro.current.MaxWorkers {
		ro.logger.WithFields(logrus.Fields{
			"workers":      workers,
			"cpu_usage":    cpuPercent,
			"memory_usage": memPercent,
		}).Warn("Reducing scan concurrency under host pressure")
	}

	ro.current = OptimalConcurrency{
		MaxWorkers:  workers,
		CPUUsage:    cpuPercent,
		MemoryUsage: memPercent,
		Throttled:   throttled,
		SampledAt:   now,
	}
	return workers
}

// Current returns the last recommendation
func (ro *ResourceOptimizer) Current() OptimalConcurrency {
	ro.mu.Lock()
	defer ro.mu.Unlock()
	return ro.current
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
