package patterns

import (
	"fmt"
	"time"

	"github.com/irfndi/celebrum-patterns/internal/models"
)

// OrderBlockConfig holds the per-call thresholds of the order block detector
type OrderBlockConfig struct {
	MinBodySizeFactor   float64 `mapstructure:"min_body_size_factor" json:"min_body_size_factor"`
	MinMoveAfterFactor  float64 `mapstructure:"min_move_after_factor" json:"min_move_after_factor"`
	ConfirmationCandles int     `mapstructure:"confirmation_candles" json:"confirmation_candles"`
	StrengthThreshold   float64 `mapstructure:"strength_threshold" json:"strength_threshold"`
	RiskRewardTarget    float64 `mapstructure:"risk_reward_target" json:"risk_reward_target"`
	SwingWindow         int     `mapstructure:"swing_window" json:"swing_window"`
}

// DefaultOrderBlockConfig returns the standard order block thresholds
func DefaultOrderBlockConfig() OrderBlockConfig {
	return OrderBlockConfig{
		MinBodySizeFactor:   0.6,
		MinMoveAfterFactor:  1.5,
		ConfirmationCandles: 3,
		StrengthThreshold:   0.7,
		RiskRewardTarget:    2.0,
		SwingWindow:         DefaultSwingWindow,
	}
}

// withDefaults replaces unusable values; StrengthThreshold is taken as given
func (c OrderBlockConfig) withDefaults() OrderBlockConfig {
	d := DefaultOrderBlockConfig()
	if c.MinBodySizeFactor <= 0 {
		c.MinBodySizeFactor = d.MinBodySizeFactor
	}
	if c.MinMoveAfterFactor <= 0 {
		c.MinMoveAfterFactor = d.MinMoveAfterFactor
	}
	if c.ConfirmationCandles < 1 {
		c.ConfirmationCandles = d.ConfirmationCandles
	}
	if c.RiskRewardTarget <= 0 {
		c.RiskRewardTarget = d.RiskRewardTarget
	}
	if c.SwingWindow < 1 {
		c.SwingWindow = d.SwingWindow
	}
	return c
}

// stopBufferFactor pads stops beyond the zone by a fraction of the average body
const stopBufferFactor = 0.1

// DetectOrderBlocks finds candles that precede a strong opposite-direction
// continuation. Results are ordered by candle index.
func DetectOrderBlocks(candles []models.Candle, cfg OrderBlockConfig) []models.OrderBlock {
	return DetectOrderBlocksSeries(NewSeries(candles), cfg)
}

// DetectOrderBlocksSeries is DetectOrderBlocks over columnar data
func DetectOrderBlocksSeries(s *Series, cfg OrderBlockConfig) []models.OrderBlock {
	cfg = cfg.withDefaults()
	return DetectOrderBlocksWithSwings(s, cfg, FindSwingPointsVectorized(s.High, s.Low, cfg.SwingWindow))
}

// DetectOrderBlocksWithSwings uses precomputed swing points for the
// structure and liquidity factors instead of cfg.SwingWindow.
func DetectOrderBlocksWithSwings(s *Series, cfg OrderBlockConfig, swings []models.SwingPoint) []models.OrderBlock {
	cfg = cfg.withDefaults()
	if s.Len() < cfg.ConfirmationCandles+1 {
		return []models.OrderBlock{}
	}

	avgBody := s.AverageBody()
	if !isFinitePositive(avgBody) {
		return []models.OrderBlock{}
	}
	return detectOrderBlocks(s, cfg, newFactorContext(s, swings, avgBody))
}

func detectOrderBlocks(s *Series, cfg OrderBlockConfig, fc *factorContext) []models.OrderBlock {
	blocks := []models.OrderBlock{}
	k := cfg.ConfirmationCandles
	minBody := cfg.MinBodySizeFactor * fc.avgBody
	minMove := cfg.MinMoveAfterFactor * fc.avgBody

	for i := 0; i+k < s.Len(); i++ {
		body := s.Body[i]
		if body < minBody {
			continue
		}

		var dir models.Direction
		var move float64
		switch {
		case s.Close[i] < s.Open[i]:
			// bearish candle ahead of a rally
			dir = models.Bullish
			move = maxInRange(s.Close, i+1, i+k) - s.Close[i]
		case s.Close[i] > s.Open[i]:
			dir = models.Bearish
			move = s.Close[i] - minInRange(s.Close, i+1, i+k)
		default:
			continue
		}
		if move < minMove {
			continue
		}

		bodyRatio := body / fc.avgBody
		moveRatio := move / minMove
		strength := clamp01(bodyRatio * moveRatio)
		if strength < cfg.StrengthThreshold {
			continue
		}

		blocks = append(blocks, buildOrderBlock(s, fc, cfg, i, dir, body, move, bodyRatio, moveRatio, strength))
	}

	return blocks
}

func buildOrderBlock(s *Series, fc *factorContext, cfg OrderBlockConfig, i int, dir models.Direction,
	body, move, bodyRatio, moveRatio, strength float64) models.OrderBlock {
	low, high := s.Low[i], s.High[i]
	buffer := stopBufferFactor * fc.avgBody

	var entry, stop, target float64
	if dir == models.Bullish {
		entry = high
		stop = low - buffer
		target = entry + cfg.RiskRewardTarget*(entry-stop)
	} else {
		entry = low
		stop = high + buffer
		target = entry - cfg.RiskRewardTarget*(stop-entry)
	}

	factors := map[string]float64{
		"body_strength":          clamp01(bodyRatio / 2),
		"move_strength":          clamp01(moveRatio / 2),
		FactorVolumeConfirmation: fc.volumeAt(i),
		FactorTrendStrength:      fc.trendAt(i+cfg.ConfirmationCandles, dir),
		FactorStructureQuality:   fc.structureAt(i, dir),
		FactorLiquidityPresence:  fc.liquidityNear(i, low, high, dir),
	}

	ts := s.Timestamps[i]
	return models.OrderBlock{
		Signal: models.Signal{
			ID:                signalID(models.PatternOrderBlock, dir, ts, i),
			Type:              models.PatternOrderBlock,
			Direction:         dir,
			EntryPrice:        entry,
			StopLoss:          stop,
			TakeProfit:        target,
			RiskRewardRatio:   cfg.RiskRewardTarget,
			Strength:          strength,
			Timestamp:         ts,
			ConfluenceFactors: factors,
			RiskLevel:         models.RiskLevelFromScore(strength),
			Description: fmt.Sprintf("%s order block at %s: body %.2fx average, move %.2fx required",
				dir, ts.UTC().Format(time.RFC3339), bodyRatio, moveRatio),
		},
		Index:     i,
		PriceLow:  low,
		PriceHigh: high,
		BodySize:  body,
		MoveAfter: move,
		BodyRatio: bodyRatio,
		MoveRatio: moveRatio,
	}
}
