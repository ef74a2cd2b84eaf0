package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-patterns/internal/cache"
	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/patterns"
	"github.com/irfndi/celebrum-patterns/internal/telemetry"
)

// ScanOptions are the per-call detector thresholds and result filters
type ScanOptions struct {
	OrderBlock   patterns.OrderBlockConfig   `mapstructure:"order_block" json:"order_block"`
	FairValueGap patterns.FairValueGapConfig `mapstructure:"fair_value_gap" json:"fair_value_gap"`
	BreakerBlock patterns.BreakerBlockConfig `mapstructure:"breaker_block" json:"breaker_block"`
	SwingWindow  int                         `mapstructure:"swing_window" json:"swing_window"`

	// Patterns restricts detection to the listed types; empty runs all
	Patterns      []models.PatternType `mapstructure:"patterns" json:"patterns,omitempty"`
	MinStrength   float64              `mapstructure:"min_strength" json:"min_strength"`
	MinRiskReward float64              `mapstructure:"min_risk_reward" json:"min_risk_reward"`
	// TopN caps the returned signals; 0 returns all
	TopN int `mapstructure:"top_n" json:"top_n"`
}

// DefaultScanOptions returns the standard detector settings with no filters
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		OrderBlock:   patterns.DefaultOrderBlockConfig(),
		FairValueGap: patterns.DefaultFairValueGapConfig(),
		BreakerBlock: patterns.DefaultBreakerBlockConfig(),
		SwingWindow:  patterns.DefaultSwingWindow,
		TopN:         10,
	}
}

func (o ScanOptions) enabled(kind models.PatternType) bool {
	if len(o.Patterns) == 0 {
		return true
	}
	for _, p := range o.Patterns {
		if p == kind {
			return true
		}
	}
	return false
}

// ScanRequest is one candle window to analyse
type ScanRequest struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Candles   []models.Candle `json:"candles"`
	// Options overrides the scanner defaults for this call
	Options   *ScanOptions `json:"options,omitempty"`
	Sentiment *float64     `json:"sentiment,omitempty"`
}

// ScanResult holds the ranked signals found in one window
type ScanResult struct {
	Symbol      string                     `json:"symbol"`
	Timeframe   string                     `json:"timeframe"`
	CandleCount int                        `json:"candle_count"`
	SwingPoints []models.SwingPoint        `json:"swing_points"`
	Signals     []*ScoredSignal            `json:"signals"`
	Detected    map[models.PatternType]int `json:"detected"`
	Cached      bool                       `json:"cached"`
	Error       string                     `json:"error,omitempty"`
	ScannedAt   time.Time                  `json:"scanned_at"`
}

// PatternScannerConfig configures a PatternScanner
type PatternScannerConfig struct {
	Defaults  ScanOptions
	// Workers fixes the batch pool size; 0 sizes it from host resources
	Workers   int
	Resources ResourceOptimizerConfig
}

// DefaultPatternScannerConfig returns default scanner settings
func DefaultPatternScannerConfig() PatternScannerConfig {
	return PatternScannerConfig{
		Defaults:  DefaultScanOptions(),
		Workers:   4,
		Resources: DefaultResourceOptimizerConfig(),
	}
}

// PatternScanner runs every detector over candle windows, scores the
// results and ranks them. It is safe for concurrent use.
type PatternScanner struct {
	config    PatternScannerConfig
	scorer    *ConfluenceScorer
	validator *MarketDataValidator
	cache     *cache.SignalCache
	resources *ResourceOptimizer
	tracer    *telemetry.BusinessTracer
	logger    *logrus.Logger
}

// NewPatternScanner creates a scanner. signalCache may be nil to disable caching.
func NewPatternScanner(config PatternScannerConfig, scorer *ConfluenceScorer, validator *MarketDataValidator, signalCache *cache.SignalCache, logger *logrus.Logger) *PatternScanner {
	if logger == nil {
		logger = logrus.New()
	}
	if scorer == nil {
		scorer = NewConfluenceScorer(nil, logger)
	}
	if validator == nil {
		validator = NewMarketDataValidator(logger)
	}
	if config.Workers < 0 {
		config.Workers = 0
	}

	ps := &PatternScanner{
		config:    config,
		scorer:    scorer,
		validator: validator,
		cache:     signalCache,
		tracer:    telemetry.NewBusinessTracer(),
		logger:    logger,
	}
	if config.Workers == 0 {
		ps.resources = NewResourceOptimizer(config.Resources, logger)
	}
	return ps
}

func (ps *PatternScanner) workers(ctx context.Context) int {
	if ps.resources != nil {
		return ps.resources.Workers(ctx)
	}
	return ps.config.Workers
}

// Defaults returns a copy of the scanner's default options
func (ps *PatternScanner) Defaults() ScanOptions {
	opts := ps.config.Defaults
	opts.Patterns = append([]models.PatternType(nil), opts.Patterns...)
	return opts
}

// Analyze validates one window, detects all patterns, scores and ranks them.
// Validation failures are returned as *utils.DataValidationError.
func (ps *PatternScanner) Analyze(ctx context.Context, req ScanRequest) (result *ScanResult, err error) {
	start := time.Now()
	ctx, span := ps.tracer.TracePatternScan(ctx, req.Symbol, req.Timeframe, len(req.Candles))
	defer func() {
		metrics := telemetry.ScanMetrics{ScanDuration: time.Since(start)}
		if result != nil {
			metrics.SwingPoints = len(result.SwingPoints)
			metrics.Returned = len(result.Signals)
			metrics.Cached = result.Cached
			for _, n := range result.Detected {
				metrics.Detected += n
			}
			if len(result.Signals) > 0 {
				metrics.TopScore = result.Signals[0].Score
			}
		}
		ps.tracer.RecordScanResult(span, metrics, err)
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ps.validator.ValidateCandles(req.Candles); err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Symbol, req.Timeframe, err)
	}

	opts := ps.config.Defaults
	if req.Options != nil {
		opts = *req.Options
	}

	var cacheKey string
	if ps.cache != nil {
		cacheKey = ps.cacheKey(req, opts)
		var cached ScanResult
		if ps.cache.Get(ctx, cacheKey, &cached) {
			cached.Cached = true
			return &cached, nil
		}
	}

	result = ps.scan(ctx, req, opts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if ps.cache != nil {
		if err := ps.cache.Set(ctx, cacheKey, result); err != nil {
			ps.logger.WithError(err).WithField("symbol", req.Symbol).Warn("Failed to cache scan result")
		}
	}

	ps.logger.WithFields(logrus.Fields{
		"symbol":      req.Symbol,
		"timeframe":   req.Timeframe,
		"candles":     result.CandleCount,
		"detected":    result.Detected,
		"returned":    len(result.Signals),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Pattern scan completed")

	return result, nil
}

func (ps *PatternScanner) scan(ctx context.Context, req ScanRequest, opts ScanOptions) *ScanResult {
	series := patterns.NewSeries(req.Candles)
	swings := patterns.FindSwingPointsVectorized(series.High, series.Low, opts.SwingWindow)
	result := &ScanResult{
		Symbol:      req.Symbol,
		Timeframe:   req.Timeframe,
		CandleCount: len(req.Candles),
		SwingPoints: swings,
		Detected:    make(map[models.PatternType]int, 3),
		Signals:     []*ScoredSignal{},
		ScannedAt:   time.Now().UTC(),
	}

	var detected []models.PatternSignal
	run := func(kind models.PatternType, detect func() []models.PatternSignal) {
		if !opts.enabled(kind) {
			return
		}
		_, span := ps.tracer.TraceDetector(ctx, string(kind))
		found := detect()
		span.End()
		result.Detected[kind] = len(found)
		detected = append(detected, found...)
	}

	run(models.PatternOrderBlock, func() []models.PatternSignal {
		blocks := patterns.DetectOrderBlocksWithSwings(series, opts.OrderBlock, swings)
		out := make([]models.PatternSignal, len(blocks))
		for i := range blocks {
			out[i] = &blocks[i]
		}
		return out
	})
	run(models.PatternFairValueGap, func() []models.PatternSignal {
		gaps := patterns.DetectFairValueGapsSeries(series, opts.FairValueGap)
		out := make([]models.PatternSignal, len(gaps))
		for i := range gaps {
			out[i] = &gaps[i]
		}
		return out
	})
	run(models.PatternBreakerBlock, func() []models.PatternSignal {
		breakers := patterns.DetectBreakerBlocksWithSwings(series, opts.BreakerBlock, swings)
		out := make([]models.PatternSignal, len(breakers))
		for i := range breakers {
			out[i] = &breakers[i]
		}
		return out
	})

	applyZoneConfluence(detected)

	market := &MarketContext{Candles: req.Candles, Sentiment: req.Sentiment}
	for _, signal := range detected {
		base := signal.Base()
		if base.Strength < opts.MinStrength || base.RiskRewardRatio < opts.MinRiskReward {
			continue
		}
		result.Signals = append(result.Signals, ps.scorer.ScoreSignal(signal, market, nil))
	}

	RankSignals(result.Signals)
	if opts.TopN > 0 && len(result.Signals) > opts.TopN {
		result.Signals = result.Signals[:opts.TopN]
	}
	return result
}

// applyZoneConfluence sets confluence_factor on every signal from the number
// of other signals whose price zone overlaps its own.
func applyZoneConfluence(signals []models.PatternSignal) {
	for i, signal := range signals {
		low, high := signal.PriceRange()
		overlaps := 0
		for j, other := range signals {
			if i == j {
				continue
			}
			otherLow, otherHigh := other.PriceRange()
			if low <= otherHigh && otherLow <= high {
				overlaps++
			}
		}

		base := signal.Base()
		if base.ConfluenceFactors == nil {
			base.ConfluenceFactors = make(map[string]float64, 1)
		}
		base.ConfluenceFactors[patterns.FactorConfluence] = ZoneConfluenceScore(overlaps)
	}
}

// ZoneConfluenceScore maps an overlap count to a factor: 0.5 alone, +0.25
// per overlapping zone, capped at 1.
func ZoneConfluenceScore(overlaps int) float64 {
	return math.Min(1, 0.5+0.25*float64(overlaps))
}

// RankSignals orders by score, then strength, then newer timestamp, then ID
func RankSignals(signals []*ScoredSignal) {
	sort.SliceStable(signals, func(i, j int) bool {
		a, b := signals[i], signals[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ab, bb := a.Signal.Base(), b.Signal.Base()
		if ab.Strength != bb.Strength {
			return ab.Strength > bb.Strength
		}
		if !ab.Timestamp.Equal(bb.Timestamp) {
			return ab.Timestamp.After(bb.Timestamp)
		}
		return ab.ID < bb.ID
	})
}

func (ps *PatternScanner) cacheKey(req ScanRequest, opts ScanOptions) string {
	salt, err := json.Marshal(struct {
		Options   ScanOptions `json:"options"`
		Sentiment *float64    `json:"sentiment"`
	}{opts, req.Sentiment})
	if err != nil {
		salt = []byte(fmt.Sprintf("%+v", opts))
	}
	return ps.cache.Key(req.Symbol, req.Timeframe, cache.WindowHash(req.Candles, string(salt)))
}

// ScanMany analyses requests on a bounded worker pool. Results keep request
// order; a window that fails records its error in its result. Context
// cancellation aborts the batch.
func (ps *PatternScanner) ScanMany(ctx context.Context, requests []ScanRequest) ([]*ScanResult, error) {
	workers := ps.workers(ctx)
	ctx, span := ps.tracer.TraceBatchScan(ctx, len(requests), workers)
	defer span.End()

	results := make([]*ScanResult, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range requests {
		if gctx.Err() != nil {
			break
		}
		req := requests[i]
		g.Go(func() error {
			res, err := ps.Analyze(gctx, req)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				results[i] = &ScanResult{
					Symbol:      req.Symbol,
					Timeframe:   req.Timeframe,
					CandleCount: len(req.Candles),
					Signals:     []*ScoredSignal{},
					Error:       err.Error(),
					ScannedAt:   time.Now().UTC(),
				}
				return nil
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("scan batch aborted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("scan batch aborted: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	ps.logger.WithFields(logrus.Fields{
		"requests": len(requests),
		"failed":   failed,
		"workers":  workers,
	}).Info("Pattern scan batch completed")

	return results, nil
}
