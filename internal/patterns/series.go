// Package patterns detects price-action structures (swing points, order
// blocks, fair value gaps and breaker blocks) over an ordered candle window.
//
// Every detector is a pure function of its inputs and configuration. All
// arithmetic runs over the contiguous columns of a Series, so callers that
// already hold columnar data can skip the candle conversion entirely.
package patterns

import (
	"time"

	"github.com/irfndi/celebrum-patterns/internal/models"
)

// Series is a columnar view of a candle window
type Series struct {
	Timestamps []time.Time
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64
	Body       []float64
}

// NewSeries converts candles into contiguous columns
func NewSeries(candles []models.Candle) *Series {
	n := len(candles)
	s := &Series{
		Timestamps: make([]time.Time, n),
		Open:       make([]float64, n),
		High:       make([]float64, n),
		Low:        make([]float64, n),
		Close:      make([]float64, n),
		Volume:     make([]float64, n),
		Body:       make([]float64, n),
	}

	for i, c := range candles {
		s.Timestamps[i] = c.Timestamp
		s.Open[i] = c.Open
		s.High[i] = c.High
		s.Low[i] = c.Low
		s.Close[i] = c.Close
		s.Volume[i] = c.EffectiveVolume()
		s.Body[i] = c.BodySize()
	}

	return s
}

// NewSeriesFromArrays builds a Series from existing columns. Volume may be nil.
// The shortest price column bounds the series length.
func NewSeriesFromArrays(timestamps []time.Time, open, high, low, close, volume []float64) *Series {
	n := minLen(len(timestamps), len(open), len(high), len(low), len(close))
	s := &Series{
		Timestamps: timestamps[:n],
		Open:       open[:n],
		High:       high[:n],
		Low:        low[:n],
		Close:      close[:n],
		Volume:     make([]float64, n),
		Body:       make([]float64, n),
	}

	for i := 0; i < n; i++ {
		v := 0.0
		if i < len(volume) {
			v = volume[i]
		}
		if v <= 0 {
			v = 1
		}
		s.Volume[i] = v
		s.Body[i] = absFloat(close[i] - open[i])
	}

	return s
}

// Len returns the number of bars
func (s *Series) Len() int {
	return len(s.Close)
}

// AverageBody returns the mean body size over the whole window
func (s *Series) AverageBody() float64 {
	return mean(s.Body)
}

func minLen(lengths ...int) int {
	if len(lengths) == 0 {
		return 0
	}
	m := lengths[0]
	for _, l := range lengths[1:] {
		if l < m {
			m = l
		}
	}
	return m
}
