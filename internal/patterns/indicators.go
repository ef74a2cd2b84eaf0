package patterns

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
)

// SMA returns the simple moving average aligned to the input: index i holds
// the average of values[i-period+1..i], and NaN where the window is incomplete.
func SMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nanSlice(len(values))
	}

	sma := trend.NewSmaWithPeriod[float64](period)
	result := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))

	return alignTail(result, len(values))
}

// EMA returns the exponential moving average aligned to the input, NaN while
// the indicator is still idle.
func EMA(values []float64, period int) []float64 {
	if period < 1 || len(values) < period {
		return nanSlice(len(values))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	result := helper.ChanToSlice(ema.Compute(helper.SliceToChan(values)))

	return alignTail(result, len(values))
}

// TrueRange computes max(high-low, |high-prevClose|, |low-prevClose|). The
// first bar has no previous close and uses its own range.
func TrueRange(s *Series) []float64 {
	n := s.Len()
	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		r := s.High[i] - s.Low[i]
		if i > 0 {
			prevClose := s.Close[i-1]
			r = math.Max(r, math.Max(absFloat(s.High[i]-prevClose), absFloat(s.Low[i]-prevClose)))
		}
		tr[i] = r
	}
	return tr
}

// ATR is the rolling mean of true range. When the window holds fewer bars
// than period the rolling window shrinks to the available count. Leading
// values are backfilled with the first complete value and any later holes
// are forward-filled.
func ATR(s *Series, period int) []float64 {
	n := s.Len()
	if n == 0 {
		return nil
	}
	if period < 1 {
		period = 1
	}
	if period > n {
		period = n
	}

	atr := SMA(TrueRange(s), period)
	fillGaps(atr)
	return atr
}

// fillGaps backfills leading NaNs and forward-fills the rest in place
func fillGaps(values []float64) {
	first := -1
	for i, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			first = i
			break
		}
	}
	if first < 0 {
		return
	}

	for i := 0; i < first; i++ {
		values[i] = values[first]
	}
	last := values[first]
	for i := first + 1; i < len(values); i++ {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			values[i] = last
			continue
		}
		last = values[i]
	}
}

// alignTail right-aligns an indicator output shorter than the input
func alignTail(result []float64, n int) []float64 {
	out := nanSlice(n)
	if len(result) > n {
		result = result[len(result)-n:]
	}
	copy(out[n-len(result):], result)
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// TrailingAverage returns the mean of values[i-lookback..i-1], or 0 when no
// history precedes i.
func TrailingAverage(values []float64, i, lookback int) float64 {
	from := i - lookback
	if from < 0 {
		from = 0
	}
	if i > len(values) {
		i = len(values)
	}
	if from >= i {
		return 0
	}
	return mean(values[from:i])
}
