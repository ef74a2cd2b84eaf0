package patterns

import (
	"github.com/irfndi/celebrum-patterns/internal/models"
)

// DefaultSwingWindow is the symmetric neighbourhood used when none is configured
const DefaultSwingWindow = 3

// FindSwingPoints locates swing highs and lows by direct windowed comparison.
// Index i is a swing high when high[i] strictly exceeds every high within w
// bars on either side; swing lows mirror on lows. The first and last w bars
// never qualify. Results are ordered by index, highs before lows.
func FindSwingPoints(high, low []float64, window int) []models.SwingPoint {
	if window < 1 {
		window = 1
	}
	n := minLen(len(high), len(low))
	points := []models.SwingPoint{}
	if n < 2*window+1 {
		return points
	}

	for i := window; i < n-window; i++ {
		isHigh, isLow := true, true
		for j := i - window; j <= i+window; j++ {
			if j == i {
				continue
			}
			if high[j] >= high[i] {
				isHigh = false
			}
			if low[j] <= low[i] {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		if isHigh {
			points = append(points, models.SwingPoint{Index: i, Price: high[i], Kind: models.SwingHigh})
		}
		if isLow {
			points = append(points, models.SwingPoint{Index: i, Price: low[i], Kind: models.SwingLow})
		}
	}

	return points
}

// FindSwingPointsVectorized returns the same points as FindSwingPoints using
// sliding-window extrema computed once over the whole array.
func FindSwingPointsVectorized(high, low []float64, window int) []models.SwingPoint {
	if window < 1 {
		window = 1
	}
	n := minLen(len(high), len(low))
	points := []models.SwingPoint{}
	if n < 2*window+1 {
		return points
	}

	// windowMax[j] = max(high[j..j+window-1])
	windowMax := slidingExtreme(high[:n], window, func(a, b float64) bool { return a >= b })
	windowMin := slidingExtreme(low[:n], window, func(a, b float64) bool { return a <= b })

	for i := window; i < n-window; i++ {
		leftMax, rightMax := windowMax[i-window], windowMax[i+1]
		leftMin, rightMin := windowMin[i-window], windowMin[i+1]

		if high[i] > leftMax && high[i] > rightMax {
			points = append(points, models.SwingPoint{Index: i, Price: high[i], Kind: models.SwingHigh})
		}
		if low[i] < leftMin && low[i] < rightMin {
			points = append(points, models.SwingPoint{Index: i, Price: low[i], Kind: models.SwingLow})
		}
	}

	return points
}

// slidingExtreme computes the extreme of every length-w window using a
// monotonic deque. dominates(a, b) reports whether a should evict b.
func slidingExtreme(values []float64, w int, dominates func(a, b float64) bool) []float64 {
	n := len(values)
	if w > n {
		return nil
	}
	out := make([]float64, n-w+1)
	deque := make([]int, 0, w)

	for i := 0; i < n; i++ {
		for len(deque) > 0 && dominates(values[i], values[deque[len(deque)-1]]) {
			deque = deque[:len(deque)-1]
		}
		deque = append(deque, i)
		if deque[0] <= i-w {
			deque = deque[1:]
		}
		if i >= w-1 {
			out[i-w+1] = values[deque[0]]
		}
	}

	return out
}

// SplitSwingPoints separates highs from lows, preserving index order
func SplitSwingPoints(points []models.SwingPoint) (highs, lows []models.SwingPoint) {
	for _, p := range points {
		if p.Kind == models.SwingHigh {
			highs = append(highs, p)
		} else {
			lows = append(lows, p)
		}
	}
	return highs, lows
}
