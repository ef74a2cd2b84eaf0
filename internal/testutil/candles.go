// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"math"
	"math/rand"
	"time"

	"github.com/irfndi/celebrum-patterns/internal/models"
)

// BaseTime is the timestamp of the first generated candle
var BaseTime = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// RandomWalkCandles generates n hourly candles from a seeded random walk so
// fixtures are reproducible across runs.
func RandomWalkCandles(seed int64, n int, start float64) []models.Candle {
	rng := rand.New(rand.NewSource(seed))
	candles := make([]models.Candle, n)
	price := start

	for i := 0; i < n; i++ {
		open := price
		drift := (rng.Float64() - 0.5) * start * 0.004
		// occasional impulse bars open away from the prior close and leave gaps
		if rng.Intn(12) == 0 {
			drift *= 4
			open = math.Max(open+drift/2, start*0.01)
		}
		closePrice := math.Max(open+drift, start*0.01)
		wickUp := rng.Float64() * start * 0.001
		wickDown := rng.Float64() * start * 0.001

		candles[i] = models.Candle{
			Timestamp: BaseTime.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      math.Max(open, closePrice) + wickUp,
			Low:       math.Min(open, closePrice) - wickDown,
			Close:     closePrice,
			Volume:    800 + rng.Float64()*400,
		}
		price = closePrice
	}

	return candles
}

// TrendingCandles generates n hourly candles whose close moves by step each
// bar, with a fixed half-range around the close.
func TrendingCandles(n int, start, step, halfRange float64) []models.Candle {
	candles := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		c := start + float64(i)*step
		candles[i] = models.Candle{
			Timestamp: BaseTime.Add(time.Duration(i) * time.Hour),
			Open:      c - step,
			High:      c + halfRange,
			Low:       c - halfRange,
			Close:     c,
			Volume:    1000,
		}
	}
	return candles
}

// HighsLows splits candles into high and low columns
func HighsLows(candles []models.Candle) (high, low []float64) {
	high = make([]float64, len(candles))
	low = make([]float64, len(candles))
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
	}
	return high, low
}

// Bar builds hourly candle i with a 0.0002 wick on each side of the body
func Bar(i int, open, close float64) models.Candle {
	const wick = 0.0002
	high, low := open, close
	if close > open {
		high, low = close, open
	}
	return models.Candle{
		Timestamp: BaseTime.Add(time.Duration(i) * time.Hour),
		Open:      open,
		High:      high + wick,
		Low:       low - wick,
		Close:     close,
		Volume:    1000,
	}
}

// OrderBlockWindow is a 10-bar window with a bearish bar at index 5
// (body 0.0040, average body 0.0020) followed by a 0.0070 rally.
func OrderBlockWindow() []models.Candle {
	return []models.Candle{
		Bar(0, 1.1030, 1.1040),
		Bar(1, 1.1040, 1.1030),
		Bar(2, 1.1030, 1.1040),
		Bar(3, 1.1040, 1.1030),
		Bar(4, 1.1030, 1.1040),
		Bar(5, 1.1040, 1.1000),
		Bar(6, 1.1000, 1.1025),
		Bar(7, 1.1025, 1.1050),
		Bar(8, 1.1050, 1.1070),
		Bar(9, 1.1070, 1.1030),
	}
}

// BreakerWindow extends OrderBlockWindow with a break below the bar 5 zone
// at bar 11 and a retest of its low from beneath at bar 12.
func BreakerWindow() []models.Candle {
	candles := OrderBlockWindow()
	retest := Bar(12, 1.0980, 1.0990)
	retest.High = 1.0996
	return append(candles,
		Bar(10, 1.1030, 1.1010),
		Bar(11, 1.1010, 1.0980),
		retest,
		Bar(13, 1.0990, 1.0970),
	)
}
