package patterns

import (
	"time"

	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/testutil"
)

var (
	bar                = testutil.Bar
	orderBlockScenario = testutil.OrderBlockWindow
	breakerScenario    = testutil.BreakerWindow
)

// fairValueGapScenario is a slow uptrend whose last bar opens a 0.0006 gap
// above the previous high of 1.1000.
func fairValueGapScenario() []models.Candle {
	candles := testutil.TrendingCandles(23, 1.0974, 0.0001, 0.0004)
	return append(candles, models.Candle{
		Timestamp: testutil.BaseTime.Add(23 * time.Hour),
		Open:      1.1008,
		High:      1.1014,
		Low:       1.1006,
		Close:     1.1012,
		Volume:    1000,
	})
}

// gapStaircase appends one upward gap of each size to a short uptrend, each
// followed by three overlapping bars.
func gapStaircase(sizes ...float64) []models.Candle {
	candles := testutil.TrendingCandles(20, 1.1, 0.0001, 0.0004)
	last := candles[len(candles)-1]
	next := func(c models.Candle) {
		c.Timestamp = last.Timestamp.Add(time.Hour)
		c.Volume = 1000
		candles = append(candles, c)
		last = c
	}

	for _, size := range sizes {
		low := last.High + size
		next(models.Candle{Open: low + 0.0002, High: low + 0.0008, Low: low, Close: low + 0.0006})
		for k := 0; k < 3; k++ {
			c := last.Close + 0.0001
			next(models.Candle{Open: last.Close, High: c + 0.0004, Low: c - 0.0004, Close: c})
		}
	}

	return candles
}
