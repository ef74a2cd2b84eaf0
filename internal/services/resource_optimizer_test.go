package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestOptimizer(cores int, cpuPct, memPct float64, err error) (*ResourceOptimizer, *int, *time.Time) {
	ro := NewResourceOptimizer(ResourceOptimizerConfig{
		MinWorkers:      2,
		MaxWorkers:      16,
		CPUThreshold:    80,
		MemoryThreshold: 85,
		SampleInterval:  time.Minute,
	}, quietLogger())
	ro.cpuCores = cores

	calls := 0
	ro.sample = func(context.Context) (float64, float64, error) {
		calls++
		return cpuPct, memPct, err
	}
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	ro.now = func() time.Time { return now }
	return ro, &calls, &now
}

func TestResourceOptimizer_Workers(t *testing.T) {
	tests := []struct {
		name          string
		cores         int
		cpu, mem      float64
		err           error
		wantWorkers   int
		wantThrottled bool
	}{
		{"idle host", 4, 10, 40, nil, 8, false},
		{"capped at max", 32, 10, 40, nil, 16, false},
		{"floored at min", 1, 95, 95, nil, 2, true},
		{"memory pressure halves", 4, 10, 90, nil, 4, true},
		{"cpu pressure trims", 4, 90, 40, nil, 6, true},
		{"both", 8, 90, 90, nil, 6, true},
		{"sampling error uses base", 4, 99, 99, errors.New("no procfs"), 8, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ro, _, _ := newTestOptimizer(tt.cores, tt.cpu, tt.mem, tt.err)

			assert.Equal(t, tt.wantWorkers, ro.Workers(context.Background()))
			current := ro.Current()
			assert.Equal(t, tt.wantWorkers, current.MaxWorkers)
			assert.Equal(t, tt.wantThrottled, current.Throttled)
		})
	}
}

func TestResourceOptimizer_SampleInterval(t *testing.T) {
	ro, calls, now := newTestOptimizer(4, 10, 40, nil)

	ro.Workers(context.Background())
	ro.Workers(context.Background())
	assert.Equal(t, 1, *calls)

	*now = now.Add(2 * time.Minute)
	ro.Workers(context.Background())
	assert.Equal(t, 2, *calls)
}

func TestNewResourceOptimizer_Defaults(t *testing.T) {
	ro := NewResourceOptimizer(ResourceOptimizerConfig{MinWorkers: 30}, nil)

	assert.Equal(t, 30, ro.config.MinWorkers)
	assert.Equal(t, 30, ro.config.MaxWorkers)
	assert.Equal(t, 80.0, ro.config.CPUThreshold)
	assert.Equal(t, 30*time.Second, ro.config.SampleInterval)
	assert.Positive(t, ro.cpuCores)
}
