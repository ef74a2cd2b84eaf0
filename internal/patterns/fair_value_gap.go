package patterns

import (
	"fmt"
	"sort"
	"time"

	"github.com/irfndi/celebrum-patterns/internal/models"
)

// FairValueGapConfig holds the per-call thresholds of the gap detector
type FairValueGapConfig struct {
	MinGapFactor      float64 `mapstructure:"min_gap_factor" json:"min_gap_factor"`
	StrengthThreshold float64 `mapstructure:"strength_threshold" json:"strength_threshold"`
	MaxResults        int     `mapstructure:"max_results" json:"max_results"`
	ATRPeriod         int     `mapstructure:"atr_period" json:"atr_period"`
	StopATRFactor     float64 `mapstructure:"stop_atr_factor" json:"stop_atr_factor"`
}

// DefaultFairValueGapConfig returns the standard gap thresholds
func DefaultFairValueGapConfig() FairValueGapConfig {
	return FairValueGapConfig{
		MinGapFactor:      0.5,
		StrengthThreshold: 0.7,
		MaxResults:        20,
		ATRPeriod:         14,
		StopATRFactor:     0.3,
	}
}

func (c FairValueGapConfig) withDefaults() FairValueGapConfig {
	d := DefaultFairValueGapConfig()
	if c.MinGapFactor <= 0 {
		c.MinGapFactor = d.MinGapFactor
	}
	if c.MaxResults < 1 {
		c.MaxResults = d.MaxResults
	}
	if c.ATRPeriod < 1 {
		c.ATRPeriod = d.ATRPeriod
	}
	if c.StopATRFactor <= 0 {
		c.StopATRFactor = d.StopATRFactor
	}
	return c
}

// MinFairValueGapCandles is the shortest window the gap detector inspects
const MinFairValueGapCandles = 3

// gap strength weights; the remaining 0.3 is a fixed base credit
const (
	gapStrengthWeight   = 0.4
	gapTrendWeight      = 0.3
	gapBaseCredit       = 0.3
	gapSaturationFactor = 2.0
)

// DetectFairValueGaps finds non-overlapping wick imbalances normalised by
// ATR, sorted by strength descending and truncated to MaxResults.
func DetectFairValueGaps(candles []models.Candle, cfg FairValueGapConfig) []models.FairValueGap {
	return DetectFairValueGapsSeries(NewSeries(candles), cfg)
}

// DetectFairValueGapsSeries is DetectFairValueGaps over columnar data
func DetectFairValueGapsSeries(s *Series, cfg FairValueGapConfig) []models.FairValueGap {
	cfg = cfg.withDefaults()
	gaps := []models.FairValueGap{}
	if s.Len() < MinFairValueGapCandles {
		return gaps
	}

	atr := ATR(s, cfg.ATRPeriod)
	fc := newFactorContext(s, nil, s.AverageBody())

	for i := 1; i < s.Len(); i++ {
		var dir models.Direction
		var top, bottom float64
		switch {
		case s.Low[i] > s.High[i-1]:
			dir, top, bottom = models.Bullish, s.Low[i], s.High[i-1]
		case s.High[i] < s.Low[i-1]:
			dir, top, bottom = models.Bearish, s.Low[i-1], s.High[i]
		default:
			continue
		}

		a := atr[i]
		if !isFinitePositive(a) {
			continue
		}
		size := top - bottom
		if size < cfg.MinGapFactor*a {
			continue
		}

		gapStrength := clamp01(size / (gapSaturationFactor * a))
		trendStrength := fc.trendAt(i, dir)
		strength := clamp01(gapStrengthWeight*gapStrength + gapTrendWeight*trendStrength + gapBaseCredit)
		if strength < cfg.StrengthThreshold {
			continue
		}

		gaps = append(gaps, buildFairValueGap(s, fc, cfg, i, dir, top, bottom, a, gapStrength, trendStrength, strength))
	}

	sort.SliceStable(gaps, func(a, b int) bool {
		if gaps[a].Strength != gaps[b].Strength {
			return gaps[a].Strength > gaps[b].Strength
		}
		return gaps[a].Index < gaps[b].Index
	})

	if len(gaps) > cfg.MaxResults {
		gaps = gaps[:cfg.MaxResults]
	}
	return gaps
}

func buildFairValueGap(s *Series, fc *factorContext, cfg FairValueGapConfig, i int, dir models.Direction,
	top, bottom, atr, gapStrength, trendStrength, strength float64) models.FairValueGap {
	size := top - bottom
	stopDistance := cfg.StopATRFactor * atr
	entry := (top + bottom) / 2

	var stop, target float64
	if dir == models.Bullish {
		stop = bottom - stopDistance
		target = top + size
	} else {
		stop = top + stopDistance
		target = bottom - size
	}

	ts := s.Timestamps[i]
	return models.FairValueGap{
		Signal: models.Signal{
			ID:              signalID(models.PatternFairValueGap, dir, ts, i),
			Type:            models.PatternFairValueGap,
			Direction:       dir,
			EntryPrice:      entry,
			StopLoss:        stop,
			TakeProfit:      target,
			RiskRewardRatio: size / stopDistance,
			Strength:        strength,
			Timestamp:       ts,
			ConfluenceFactors: map[string]float64{
				"gap_strength":           gapStrength,
				FactorTrendStrength:      trendStrength,
				FactorVolumeConfirmation: fc.volumeAt(i),
				FactorStructureQuality:   fc.structureAt(i, dir),
			},
			RiskLevel: models.RiskLevelFromScore(strength),
			Description: fmt.Sprintf("%s fair value gap at %s: %.5f wide (%.2f ATR)",
				dir, ts.UTC().Format(time.RFC3339), size, size/atr),
		},
		Index:       i,
		PriceTop:    top,
		PriceBottom: bottom,
		GapSize:     size,
	}
}

// IsFilled reports whether price has traded back into the gap
func IsFilled(gap models.FairValueGap, price float64) bool {
	return price >= gap.PriceBottom && price <= gap.PriceTop
}
