package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Direction is the expected bias of a pattern signal
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
)

// Opposite returns the inverse direction
func (d Direction) Opposite() Direction {
	if d == Bullish {
		return Bearish
	}
	return Bullish
}

// RiskLevel categorises a strength or confluence score
type RiskLevel string

const (
	RiskLow     RiskLevel = "LOW"
	RiskMedium  RiskLevel = "MEDIUM"
	RiskHigh    RiskLevel = "HIGH"
	RiskExtreme RiskLevel = "EXTREME"
)

// Rank orders risk levels from best (0) to worst (3)
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 3
	}
}

// RiskLevelFromScore maps a 0..1 score onto a risk category
func RiskLevelFromScore(score float64) RiskLevel {
	switch {
	case score >= 0.9:
		return RiskLow
	case score >= 0.8:
		return RiskMedium
	case score >= 0.7:
		return RiskHigh
	default:
		return RiskExtreme
	}
}

// PatternType names a detected structure
type PatternType string

const (
	PatternOrderBlock   PatternType = "order_block"
	PatternFairValueGap PatternType = "fair_value_gap"
	PatternBreakerBlock PatternType = "breaker_block"
)

// Signal holds the fields shared by every detected pattern
type Signal struct {
	ID                string             `json:"id"`
	Type              PatternType        `json:"type"`
	Direction         Direction          `json:"direction"`
	EntryPrice        float64            `json:"entry_price"`
	StopLoss          float64            `json:"stop_loss"`
	TakeProfit        float64            `json:"take_profit"`
	RiskRewardRatio   float64            `json:"risk_reward_ratio"`
	Strength          float64            `json:"strength"`
	Timestamp         time.Time          `json:"timestamp"`
	ConfluenceFactors map[string]float64 `json:"confluence_factors"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	Description       string             `json:"description"`
}

// Base returns the common signal fields
func (s *Signal) Base() *Signal {
	return s
}

// PatternSignal is implemented by every pattern variant
type PatternSignal interface {
	Base() *Signal
	// PriceRange returns the low and high price the pattern occupies
	PriceRange() (float64, float64)
}

// OrderBlock is a candle opposing a subsequent strong move
type OrderBlock struct {
	Signal
	Index     int     `json:"index"`
	PriceLow  float64 `json:"price_low"`
	PriceHigh float64 `json:"price_high"`
	BodySize  float64 `json:"body_size"`
	MoveAfter float64 `json:"move_after"`
	BodyRatio float64 `json:"body_ratio"`
	MoveRatio float64 `json:"move_ratio"`
}

// PriceRange returns the order block zone
func (ob *OrderBlock) PriceRange() (float64, float64) {
	return ob.PriceLow, ob.PriceHigh
}

// FairValueGap is an imbalance where consecutive wick ranges fail to overlap
type FairValueGap struct {
	Signal
	Index       int     `json:"index"`
	PriceTop    float64 `json:"price_top"`
	PriceBottom float64 `json:"price_bottom"`
	GapSize     float64 `json:"gap_size"`
}

// PriceRange returns the gap bounds
func (g *FairValueGap) PriceRange() (float64, float64) {
	return g.PriceBottom, g.PriceTop
}

// BreakerBlock is a former order block that was broken and retested
type BreakerBlock struct {
	Signal
	OriginTimestamp time.Time `json:"origin_timestamp"`
	OriginIndex     int       `json:"origin_index"`
	OriginLow       float64   `json:"origin_low"`
	OriginHigh      float64   `json:"origin_high"`
	OriginStrength  float64   `json:"origin_strength"`
	BreakIndex      int       `json:"break_index"`
	RetestIndex     int       `json:"retest_index"`
	Level           float64   `json:"level"`
}

// PriceRange returns the zone of the originating order block
func (b *BreakerBlock) PriceRange() (float64, float64) {
	return b.OriginLow, b.OriginHigh
}

// DecodePatternSignal unmarshals a JSON signal into the concrete variant
// named by its "type" field.
func DecodePatternSignal(data []byte) (PatternSignal, error) {
	var head struct {
		Type PatternType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("failed to decode signal type: %w", err)
	}

	var signal PatternSignal
	switch head.Type {
	case PatternOrderBlock:
		signal = &OrderBlock{}
	case PatternFairValueGap:
		signal = &FairValueGap{}
	case PatternBreakerBlock:
		signal = &BreakerBlock{}
	default:
		return nil, fmt.Errorf("unknown signal type %q", head.Type)
	}

	if err := json.Unmarshal(data, signal); err != nil {
		return nil, fmt.Errorf("failed to decode %s signal: %w", head.Type, err)
	}
	return signal, nil
}
