package patterns

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/testutil"
)

func TestSMA(t *testing.T) {
	result := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, result, 5)

	assert.True(t, math.IsNaN(result[0]))
	assert.True(t, math.IsNaN(result[1]))
	assert.InDelta(t, 2.0, result[2], 1e-12)
	assert.InDelta(t, 3.0, result[3], 1e-12)
	assert.InDelta(t, 4.0, result[4], 1e-12)
}

func TestSMA_ShortInput(t *testing.T) {
	result := SMA([]float64{1, 2}, 3)
	require.Len(t, result, 2)
	for _, v := range result {
		assert.True(t, math.IsNaN(v))
	}
}

func TestEMA_TracksRisingSeries(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = float64(i + 1)
	}

	fast := EMA(values, 8)
	slow := EMA(values, 21)
	require.Len(t, fast, 60)

	last := len(values) - 1
	assert.False(t, math.IsNaN(fast[last]))
	assert.Greater(t, fast[last], slow[last])
	assert.Less(t, fast[last], values[last])
}

func TestATR(t *testing.T) {
	candles := fairValueGapScenario()
	atr := ATR(NewSeries(candles), 14)
	require.Len(t, atr, len(candles))

	for _, v := range atr {
		assert.False(t, math.IsNaN(v))
	}
	// leading values are backfilled with the first complete window
	assert.InDelta(t, 0.0008, atr[0], 1e-12)
	assert.InDelta(t, atr[13], atr[0], 1e-15)
	assert.InDelta(t, (13*0.0008+0.0018)/14, atr[23], 1e-12)
}

func TestATR_WindowShrinksToAvailableBars(t *testing.T) {
	candles := []models.Candle{
		{Open: 10, High: 11, Low: 9, Close: 10},
		{Open: 10, High: 12, Low: 10, Close: 11},
		{Open: 11, High: 11.5, Low: 10.5, Close: 11},
	}

	atr := ATR(NewSeries(candles), 14)
	require.Len(t, atr, 3)
	for _, v := range atr {
		assert.InDelta(t, (2.0+2.0+1.0)/3, v, 1e-12)
	}
}

func TestATR_Empty(t *testing.T) {
	assert.Empty(t, ATR(NewSeries(nil), 14))
}

func TestTrailingAverage(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}

	assert.Equal(t, 0.0, TrailingAverage(values, 0, 20))
	assert.InDelta(t, 1.0, TrailingAverage(values, 1, 20), 1e-12)
	assert.InDelta(t, 3.5, TrailingAverage(values, 4, 2), 1e-12)
	assert.InDelta(t, 2.5, TrailingAverage(values, 4, 20), 1e-12)
}

func TestNewSeriesFromArrays(t *testing.T) {
	candles := testutil.TrendingCandles(5, 100, 1, 2)
	s := NewSeries(candles)

	arrays := NewSeriesFromArrays(s.Timestamps, s.Open, s.High, s.Low, s.Close[:4], nil)
	assert.Equal(t, 4, arrays.Len())
	for i := 0; i < arrays.Len(); i++ {
		assert.Equal(t, 1.0, arrays.Volume[i])
		assert.InDelta(t, 1.0, arrays.Body[i], 1e-12)
	}
}

func TestVolumeScore(t *testing.T) {
	tests := []struct {
		current, average, expected float64
	}{
		{2000, 1000, 1.0},
		{1500, 1000, 0.8},
		{1000, 1000, 0.6},
		{999, 1000, 0.4},
		{1000, 0, 0.5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, VolumeScore(tt.current, tt.average))
	}
}

func TestStructureScore(t *testing.T) {
	points := func(h1, h2, l1, l2 float64) []models.SwingPoint {
		return []models.SwingPoint{
			{Index: 2, Price: h1, Kind: models.SwingHigh},
			{Index: 4, Price: l1, Kind: models.SwingLow},
			{Index: 6, Price: h2, Kind: models.SwingHigh},
			{Index: 8, Price: l2, Kind: models.SwingLow},
		}
	}

	tests := []struct {
		name     string
		points   []models.SwingPoint
		dir      models.Direction
		expected float64
	}{
		{"bullish higher highs and lows", points(10, 12, 8, 9), models.Bullish, 0.9},
		{"bullish higher high only", points(10, 12, 8, 7), models.Bullish, 0.7},
		{"bullish against lower structure", points(12, 10, 9, 8), models.Bullish, 0.4},
		{"bearish lower highs and lows", points(12, 10, 9, 8), models.Bearish, 0.9},
		{"too few swings", points(10, 12, 8, 9)[:3], models.Bullish, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StructureScore(tt.points, tt.dir))
		})
	}
}
