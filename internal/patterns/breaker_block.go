package patterns

import (
	"fmt"
	"time"

	"github.com/irfndi/celebrum-patterns/internal/models"
)

// BreakerBlockConfig holds the per-call thresholds of the breaker detector.
// Candidates configures the relaxed order block pass that seeds the search.
type BreakerBlockConfig struct {
	Candidates         OrderBlockConfig `mapstructure:"candidates" json:"candidates"`
	MinBreakBodyFactor float64          `mapstructure:"min_break_body_factor" json:"min_break_body_factor"`
	MaxLookback        int              `mapstructure:"max_lookback" json:"max_lookback"`
	RetestLookback     int              `mapstructure:"retest_lookback" json:"retest_lookback"`
	RetestThreshold    float64          `mapstructure:"retest_threshold" json:"retest_threshold"`
	StrengthThreshold  float64          `mapstructure:"strength_threshold" json:"strength_threshold"`
	RiskRewardTarget   float64          `mapstructure:"risk_reward_target" json:"risk_reward_target"`
}

// DefaultBreakerBlockConfig returns the standard breaker thresholds
func DefaultBreakerBlockConfig() BreakerBlockConfig {
	return BreakerBlockConfig{
		Candidates: OrderBlockConfig{
			MinBodySizeFactor:   0.5,
			MinMoveAfterFactor:  1.0,
			ConfirmationCandles: 3,
			StrengthThreshold:   0.5,
			RiskRewardTarget:    2.0,
			SwingWindow:         DefaultSwingWindow,
		},
		MinBreakBodyFactor: 0.8,
		MaxLookback:        50,
		RetestLookback:     20,
		RetestThreshold:    0.5,
		StrengthThreshold:  0.7,
		RiskRewardTarget:   2.0,
	}
}

func (c BreakerBlockConfig) withDefaults() BreakerBlockConfig {
	d := DefaultBreakerBlockConfig()
	if c.Candidates == (OrderBlockConfig{}) {
		c.Candidates = d.Candidates
	}
	c.Candidates = c.Candidates.withDefaults()
	if c.MinBreakBodyFactor <= 0 {
		c.MinBreakBodyFactor = d.MinBreakBodyFactor
	}
	if c.MaxLookback < 1 {
		c.MaxLookback = d.MaxLookback
	}
	if c.RetestLookback < 1 {
		c.RetestLookback = d.RetestLookback
	}
	if c.RetestThreshold <= 0 {
		c.RetestThreshold = d.RetestThreshold
	}
	if c.RiskRewardTarget <= 0 {
		c.RiskRewardTarget = d.RiskRewardTarget
	}
	return c
}

const (
	breakerOriginWeight = 0.4
	breakerBreakWeight  = 0.3
	breakerRetestWeight = 0.3
)

// DetectBreakerBlocks finds order blocks that were broken and later retested
// from the other side. The resulting signal carries the inverse bias of its
// originating block.
func DetectBreakerBlocks(candles []models.Candle, cfg BreakerBlockConfig) []models.BreakerBlock {
	return DetectBreakerBlocksSeries(NewSeries(candles), cfg)
}

// DetectBreakerBlocksSeries is DetectBreakerBlocks over columnar data
func DetectBreakerBlocksSeries(s *Series, cfg BreakerBlockConfig) []models.BreakerBlock {
	cfg = cfg.withDefaults()
	return DetectBreakerBlocksWithSwings(s, cfg, FindSwingPointsVectorized(s.High, s.Low, cfg.Candidates.SwingWindow))
}

// DetectBreakerBlocksWithSwings uses precomputed swing points for the
// candidate order blocks instead of cfg.Candidates.SwingWindow.
func DetectBreakerBlocksWithSwings(s *Series, cfg BreakerBlockConfig, swings []models.SwingPoint) []models.BreakerBlock {
	cfg = cfg.withDefaults()
	breakers := []models.BreakerBlock{}
	if s.Len() < cfg.Candidates.ConfirmationCandles+1 {
		return breakers
	}

	avgBody := s.AverageBody()
	if !isFinitePositive(avgBody) {
		return breakers
	}

	fc := newFactorContext(s, swings, avgBody)
	candidates := detectOrderBlocks(s, cfg.Candidates, fc)

	for _, ob := range candidates {
		brk, ok := findBreak(s, ob, cfg, avgBody)
		if !ok {
			continue
		}
		rt, ok := findRetest(s, ob.Direction.Opposite(), brk.level, brk.index, cfg, avgBody)
		if !ok {
			continue
		}

		strength := clamp01(breakerOriginWeight*ob.Strength + breakerBreakWeight*brk.strength + breakerRetestWeight*rt.strength)
		if strength < cfg.StrengthThreshold {
			continue
		}

		breakers = append(breakers, buildBreakerBlock(s, fc, cfg, ob, brk, rt, strength))
	}

	return breakers
}

type breakEvent struct {
	index    int
	level    float64
	strength float64
}

type retestEvent struct {
	index    int
	distance float64
	strength float64
}

// findBreak scans forward for a close through the zone boundary opposite the
// block's bias, carried by a body of at least MinBreakBodyFactor x average.
func findBreak(s *Series, ob models.OrderBlock, cfg BreakerBlockConfig, avgBody float64) (breakEvent, bool) {
	minBody := cfg.MinBreakBodyFactor * avgBody
	last := ob.Index + cfg.MaxLookback
	if last >= s.Len() {
		last = s.Len() - 1
	}

	for j := ob.Index + 1; j <= last; j++ {
		if s.Body[j] < minBody {
			continue
		}

		var level, penetration float64
		if ob.Direction == models.Bullish {
			if !(s.Close[j] < s.Open[j] && s.Close[j] < ob.PriceLow) {
				continue
			}
			level, penetration = ob.PriceLow, ob.PriceLow-s.Close[j]
		} else {
			if !(s.Close[j] > s.Open[j] && s.Close[j] > ob.PriceHigh) {
				continue
			}
			level, penetration = ob.PriceHigh, s.Close[j]-ob.PriceHigh
		}

		bodyScore := clamp01(s.Body[j] / (2 * minBody))
		penetrationScore := clamp01(penetration / avgBody)
		return breakEvent{
			index:    j,
			level:    level,
			strength: 0.5*bodyScore + 0.5*penetrationScore,
		}, true
	}

	return breakEvent{}, false
}

// findRetest looks for price returning to the broken level from the new side.
// A close back through the level first invalidates the setup.
func findRetest(s *Series, dir models.Direction, level float64, from int, cfg BreakerBlockConfig, avgBody float64) (retestEvent, bool) {
	threshold := cfg.RetestThreshold * avgBody
	if !isFinitePositive(threshold) {
		return retestEvent{}, false
	}
	last := from + cfg.RetestLookback
	if last >= s.Len() {
		last = s.Len() - 1
	}

	for k := from + 1; k <= last; k++ {
		var distance float64
		if dir == models.Bearish {
			if s.Close[k] > level {
				return retestEvent{}, false
			}
			distance = absFloat(level - s.High[k])
		} else {
			if s.Close[k] < level {
				return retestEvent{}, false
			}
			distance = absFloat(s.Low[k] - level)
		}

		if distance <= threshold {
			return retestEvent{
				index:    k,
				distance: distance,
				strength: clamp01(1 - distance/threshold),
			}, true
		}
	}

	return retestEvent{}, false
}

func buildBreakerBlock(s *Series, fc *factorContext, cfg BreakerBlockConfig, ob models.OrderBlock,
	brk breakEvent, rt retestEvent, strength float64) models.BreakerBlock {
	dir := ob.Direction.Opposite()
	buffer := stopBufferFactor * fc.avgBody
	entry := brk.level

	var stop, target float64
	if dir == models.Bearish {
		stop = ob.PriceHigh + buffer
		target = entry - cfg.RiskRewardTarget*(stop-entry)
	} else {
		stop = ob.PriceLow - buffer
		target = entry + cfg.RiskRewardTarget*(entry-stop)
	}

	ts := s.Timestamps[rt.index]
	return models.BreakerBlock{
		Signal: models.Signal{
			ID:              signalID(models.PatternBreakerBlock, dir, ts, ob.Index, brk.index, rt.index),
			Type:            models.PatternBreakerBlock,
			Direction:       dir,
			EntryPrice:      entry,
			StopLoss:        stop,
			TakeProfit:      target,
			RiskRewardRatio: cfg.RiskRewardTarget,
			Strength:        strength,
			Timestamp:       ts,
			ConfluenceFactors: map[string]float64{
				"origin_strength":        ob.Strength,
				"break_strength":         brk.strength,
				"retest_strength":        rt.strength,
				FactorVolumeConfirmation: fc.volumeAt(brk.index),
				FactorStructureQuality:   fc.structureAt(rt.index, dir),
				FactorLiquidityPresence:  ob.ConfluenceFactors[FactorLiquidityPresence],
			},
			RiskLevel: models.RiskLevelFromScore(strength),
			Description: fmt.Sprintf("%s breaker block at %s: %s order block from %s broken at bar %d, retested at bar %d",
				dir, ts.UTC().Format(time.RFC3339), ob.Direction, ob.Timestamp.UTC().Format(time.RFC3339), brk.index, rt.index),
		},
		OriginTimestamp: ob.Timestamp,
		OriginIndex:     ob.Index,
		OriginLow:       ob.PriceLow,
		OriginHigh:      ob.PriceHigh,
		OriginStrength:  ob.Strength,
		BreakIndex:      brk.index,
		RetestIndex:     rt.index,
		Level:           brk.level,
	}
}

// IsValid reports whether the breaker level still holds at price
func IsValid(b models.BreakerBlock, price float64) bool {
	if b.Direction == models.Bullish {
		return price > b.Level
	}
	return price < b.Level
}
