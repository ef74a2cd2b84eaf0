package patterns

import "math"

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// maxInRange returns the max of values[from..to] inclusive
func maxInRange(values []float64, from, to int) float64 {
	m := values[from]
	for i := from + 1; i <= to; i++ {
		if values[i] > m {
			m = values[i]
		}
	}
	return m
}

// minInRange returns the min of values[from..to] inclusive
func minInRange(values []float64, from, to int) float64 {
	m := values[from]
	for i := from + 1; i <= to; i++ {
		if values[i] < m {
			m = values[i]
		}
	}
	return m
}

func isFinitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
