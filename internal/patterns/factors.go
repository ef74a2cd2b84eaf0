package patterns

import (
	"math"

	"github.com/irfndi/celebrum-patterns/internal/models"
)

// Factor names shared between detectors and the confluence scorer
const (
	FactorTrendStrength      = "trend_strength"
	FactorVolumeConfirmation = "volume_confirmation"
	FactorStructureQuality   = "structure_quality"
	FactorLiquidityPresence  = "liquidity_presence"
	FactorConfluence         = "confluence_factor"
	FactorTimeOfDay          = "time_of_day"
	FactorMarketSentiment    = "market_sentiment"
	FactorSetupStrength      = "setup_strength"
)

const (
	neutralFactor       = 0.5
	volumeLookback      = 20
	structureLookback   = 20
	structureSwingWidth = 2
	shortTrendPeriod    = 5
	longTrendPeriod     = 20
)

// VolumeScore tiers the ratio of current volume to its trailing average
func VolumeScore(current, average float64) float64 {
	if !isFinitePositive(average) {
		return neutralFactor
	}

	ratio := current / average
	switch {
	case ratio >= 2.0:
		return 1.0
	case ratio >= 1.5:
		return 0.8
	case ratio >= 1.0:
		return 0.6
	default:
		return 0.4
	}
}

// StructureQuality grades swing structure over the trailing window ending at
// end (inclusive). A bullish direction wants higher highs and higher lows,
// bearish wants lower highs and lower lows.
func StructureQuality(high, low []float64, end int, dir models.Direction) float64 {
	n := minLen(len(high), len(low))
	if end >= n {
		end = n - 1
	}
	from := end - structureLookback + 1
	if from < 0 {
		from = 0
	}
	if end < from {
		return neutralFactor
	}

	points := FindSwingPointsVectorized(high[from:end+1], low[from:end+1], structureSwingWidth)
	return StructureScore(points, dir)
}

// StructureScore compares the last two swing highs and lows: both aligned 0.9,
// one aligned 0.7, neither 0.4, too few swings 0.5.
func StructureScore(points []models.SwingPoint, dir models.Direction) float64 {
	highs, lows := SplitSwingPoints(points)
	if len(highs) < 2 || len(lows) < 2 {
		return neutralFactor
	}

	lastHigh, prevHigh := highs[len(highs)-1].Price, highs[len(highs)-2].Price
	lastLow, prevLow := lows[len(lows)-1].Price, lows[len(lows)-2].Price

	aligned := 0
	if dir == models.Bullish {
		if lastHigh > prevHigh {
			aligned++
		}
		if lastLow > prevLow {
			aligned++
		}
	} else {
		if lastHigh < prevHigh {
			aligned++
		}
		if lastLow < prevLow {
			aligned++
		}
	}

	switch aligned {
	case 2:
		return 0.9
	case 1:
		return 0.7
	default:
		return 0.4
	}
}

// factorContext caches the window-wide series used to enrich detected signals
type factorContext struct {
	series   *Series
	swings   []models.SwingPoint
	smaShort []float64
	smaLong  []float64
	avgBody  float64
}

func newFactorContext(s *Series, swings []models.SwingPoint, avgBody float64) *factorContext {
	return &factorContext{
		series:   s,
		swings:   swings,
		smaShort: SMA(s.Close, shortTrendPeriod),
		smaLong:  SMA(s.Close, longTrendPeriod),
		avgBody:  avgBody,
	}
}

// trendAt compares SMA(5) with SMA(20) at i: aligned 1, opposed 0, otherwise 0.5
func (fc *factorContext) trendAt(i int, dir models.Direction) float64 {
	if i < 0 || i >= len(fc.smaShort) {
		return neutralFactor
	}
	short, long := fc.smaShort[i], fc.smaLong[i]
	if math.IsNaN(short) || math.IsNaN(long) || short == long {
		return neutralFactor
	}

	bullishTrend := short > long
	if bullishTrend == (dir == models.Bullish) {
		return 1.0
	}
	return 0.0
}

func (fc *factorContext) volumeAt(i int) float64 {
	if i <= 0 || i >= fc.series.Len() {
		return neutralFactor
	}
	return VolumeScore(fc.series.Volume[i], TrailingAverage(fc.series.Volume, i, volumeLookback))
}

func (fc *factorContext) structureAt(i int, dir models.Direction) float64 {
	return StructureQuality(fc.series.High, fc.series.Low, i, dir)
}

// liquidityNear grades resting liquidity around a zone: prior swing lows for
// bullish zones, prior swing highs for bearish ones, within one average body.
func (fc *factorContext) liquidityNear(before int, low, high float64, dir models.Direction) float64 {
	want := models.SwingLow
	if dir == models.Bearish {
		want = models.SwingHigh
	}

	lower, upper := low-fc.avgBody, high+fc.avgBody
	count := 0
	for _, p := range fc.swings {
		if p.Index >= before {
			break
		}
		if p.Kind == want && p.Price >= lower && p.Price <= upper {
			count++
		}
	}

	switch {
	case count >= 2:
		return 0.9
	case count == 1:
		return 0.75
	default:
		return neutralFactor
	}
}
