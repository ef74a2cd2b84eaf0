package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents a single OHLCV bar
type Candle struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Open      float64   `json:"open" validate:"gt=0"`
	High      float64   `json:"high" validate:"gt=0"`
	Low       float64   `json:"low" validate:"gt=0"`
	Close     float64   `json:"close" validate:"gt=0"`
	Volume    float64   `json:"volume,omitempty" validate:"gte=0"`
}

// BodySize returns the absolute distance between open and close
func (c Candle) BodySize() float64 {
	if c.Close >= c.Open {
		return c.Close - c.Open
	}
	return c.Open - c.Close
}

// IsBullish reports whether the candle closed above its open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// EffectiveVolume returns the candle volume, defaulting to 1 when absent
func (c Candle) EffectiveVolume() float64 {
	if c.Volume <= 0 {
		return 1
	}
	return c.Volume
}

// SwingKind distinguishes swing highs from swing lows
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingPoint is a local price extremum inside a candle window
type SwingPoint struct {
	Index int       `json:"index"`
	Price float64   `json:"price"`
	Kind  SwingKind `json:"kind"`
}

// PriceData represents columnar historical price data as delivered by collectors
type PriceData struct {
	Symbol     string            `json:"symbol"`
	Exchange   string            `json:"exchange"`
	Timeframe  string            `json:"timeframe"`
	Open       []decimal.Decimal `json:"open"`
	High       []decimal.Decimal `json:"high"`
	Low        []decimal.Decimal `json:"low"`
	Close      []decimal.Decimal `json:"close"`
	Volume     []decimal.Decimal `json:"volume"`
	Timestamps []time.Time       `json:"timestamps"`
}

// Len returns the number of bars held by the price data
func (p *PriceData) Len() int {
	return len(p.Timestamps)
}
