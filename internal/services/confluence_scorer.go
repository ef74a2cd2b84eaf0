package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/patterns"
)

const neutralScore = 0.5

// DefaultConfluenceWeights returns the standard factor weights. They sum to 1.
func DefaultConfluenceWeights() map[string]float64 {
	return map[string]float64{
		patterns.FactorTrendStrength:      0.20,
		patterns.FactorVolumeConfirmation: 0.15,
		patterns.FactorStructureQuality:   0.15,
		patterns.FactorLiquidityPresence:  0.10,
		patterns.FactorConfluence:         0.20,
		patterns.FactorTimeOfDay:          0.05,
		patterns.FactorMarketSentiment:    0.05,
		patterns.FactorSetupStrength:      0.10,
	}
}

// ConfluenceScorer combines per-signal factors into a weighted quality score.
// It is read-only after construction and safe for concurrent use.
type ConfluenceScorer struct {
	weights map[string]float64
	names   []string
	logger  *logrus.Logger
}

// MarketContext is the candle window a signal was detected in, plus optional
// externally supplied sentiment in [0,1].
type MarketContext struct {
	Candles   []models.Candle
	Sentiment *float64
}

// FactorContribution is one line of a score breakdown
type FactorContribution struct {
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// ScoredSignal is a detected pattern together with its confluence score
type ScoredSignal struct {
	Signal      models.PatternSignal          `json:"signal"`
	Score       float64                       `json:"score"`
	RiskLevel   models.RiskLevel              `json:"risk_level"`
	Factors     map[string]float64            `json:"factors"`
	Breakdown   map[string]FactorContribution `json:"breakdown"`
	Explanation string                        `json:"explanation"`
}

// UnmarshalJSON restores the concrete signal variant from its "type" field
func (s *ScoredSignal) UnmarshalJSON(data []byte) error {
	type plain ScoredSignal
	aux := struct {
		Signal json.RawMessage `json:"signal"`
		*plain
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.Signal = nil
	if len(aux.Signal) == 0 || bytes.Equal(aux.Signal, []byte("null")) {
		return nil
	}
	signal, err := models.DecodePatternSignal(aux.Signal)
	if err != nil {
		return err
	}
	s.Signal = signal
	return nil
}

// NewConfluenceScorer creates a scorer. Custom weights replace the defaults
// and are renormalised to sum to 1; non-positive entries are dropped and an
// empty or all-zero map falls back to the defaults.
func NewConfluenceScorer(weights map[string]float64, logger *logrus.Logger) *ConfluenceScorer {
	if logger == nil {
		logger = logrus.New()
	}

	normalized := normalizeWeights(weights)
	if normalized == nil {
		normalized = normalizeWeights(DefaultConfluenceWeights())
	}

	names := make([]string, 0, len(normalized))
	for name := range normalized {
		names = append(names, name)
	}
	sort.Strings(names)

	return &ConfluenceScorer{
		weights: normalized,
		names:   names,
		logger:  logger,
	}
}

func normalizeWeights(weights map[string]float64) map[string]float64 {
	total := 0.0
	for _, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			total += w
		}
	}
	if total <= 0 {
		return nil
	}

	normalized := make(map[string]float64, len(weights))
	for name, w := range weights {
		if w > 0 && !math.IsInf(w, 0) {
			normalized[name] = w / total
		}
	}
	return normalized
}

// Weights returns a copy of the normalised weights in use
func (cs *ConfluenceScorer) Weights() map[string]float64 {
	out := make(map[string]float64, len(cs.weights))
	for k, v := range cs.weights {
		out[k] = v
	}
	return out
}

// ScoreSignal scores a signal. Factor sources are layered, later wins:
// neutral defaults, the signal strength as setup_strength, the signal's own
// confluence factors, factors derived from market, then additionalFactors.
func (cs *ConfluenceScorer) ScoreSignal(signal models.PatternSignal, market *MarketContext, additionalFactors map[string]float64) *ScoredSignal {
	base := signal.Base()

	factors := make(map[string]float64, len(cs.names)+len(base.ConfluenceFactors))
	for _, name := range cs.names {
		factors[name] = neutralScore
	}
	factors[patterns.FactorSetupStrength] = base.Strength
	for name, v := range base.ConfluenceFactors {
		factors[name] = v
	}
	if market != nil {
		for name, v := range cs.marketFactors(base, market) {
			factors[name] = v
		}
	}
	for name, v := range additionalFactors {
		factors[name] = v
	}
	for name, v := range factors {
		factors[name] = clampScore(v)
	}

	score := 0.0
	breakdown := make(map[string]FactorContribution, len(cs.names))
	for _, name := range cs.names {
		weight := cs.weights[name]
		value := factors[name]
		contribution := value * weight
		score += contribution
		breakdown[name] = FactorContribution{Value: value, Weight: weight, Contribution: contribution}
	}
	score = clampScore(score)
	risk := models.RiskLevelFromScore(score)

	cs.logger.WithFields(logrus.Fields{
		"signal_id":  base.ID,
		"type":       base.Type,
		"direction":  base.Direction,
		"score":      score,
		"risk_level": risk,
	}).Debug("Scored pattern signal")

	return &ScoredSignal{
		Signal:      signal,
		Score:       score,
		RiskLevel:   risk,
		Factors:     factors,
		Breakdown:   breakdown,
		Explanation: cs.explain(base, score, risk, breakdown),
	}
}

func (cs *ConfluenceScorer) marketFactors(signal *models.Signal, market *MarketContext) map[string]float64 {
	derived := map[string]float64{
		patterns.FactorTimeOfDay: TimeOfDayScore(signal.Timestamp),
	}
	if market.Sentiment != nil {
		derived[patterns.FactorMarketSentiment] = *market.Sentiment
	}
	if len(market.Candles) == 0 {
		return derived
	}

	closes := make([]float64, len(market.Candles))
	high := make([]float64, len(market.Candles))
	low := make([]float64, len(market.Candles))
	volume := make([]float64, len(market.Candles))
	for i, c := range market.Candles {
		closes[i] = c.Close
		high[i] = c.High
		low[i] = c.Low
		volume[i] = c.EffectiveVolume()
	}

	derived[patterns.FactorTrendStrength] = TrendAlignmentScore(closes, signal.Direction)

	idx := signalCandleIndex(market.Candles, signal.Timestamp)
	if idx > 0 {
		derived[patterns.FactorVolumeConfirmation] = patterns.VolumeScore(volume[idx], patterns.TrailingAverage(volume, idx, 20))
	} else {
		derived[patterns.FactorVolumeConfirmation] = neutralScore
	}
	if idx >= 0 {
		derived[patterns.FactorStructureQuality] = patterns.StructureQuality(high, low, idx, signal.Direction)
	}

	return derived
}

// signalCandleIndex finds the last candle at or before ts, or -1
func signalCandleIndex(candles []models.Candle, ts time.Time) int {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].Timestamp.After(ts)
	})
	return i - 1
}

// TrendAlignmentScore grades EMA(8)/EMA(21)/EMA(50) stacking on closes
// relative to dir. Full alignment scales with EMA(8)-EMA(50) separation.
func TrendAlignmentScore(closes []float64, dir models.Direction) float64 {
	if len(closes) < 50 {
		return neutralScore
	}

	last := len(closes) - 1
	e8 := patterns.EMA(closes, 8)[last]
	e21 := patterns.EMA(closes, 21)[last]
	e50 := patterns.EMA(closes, 50)[last]
	if math.IsNaN(e8) || math.IsNaN(e21) || math.IsNaN(e50) || e50 == 0 {
		return neutralScore
	}

	bullStack := e8 > e21 && e21 > e50
	bearStack := e8 < e21 && e21 < e50
	aligned := (dir == models.Bullish && bullStack) || (dir == models.Bearish && bearStack)
	counter := (dir == models.Bullish && bearStack) || (dir == models.Bearish && bullStack)

	switch {
	case aligned:
		return 0.7 + math.Min(0.3, 10*math.Abs(e8-e50)/math.Abs(e50))
	case counter:
		return 0.4
	default:
		return 0.6
	}
}

// Trading sessions in UTC hours, [open, close)
var tradingSessions = []struct {
	name        string
	open, close int
}{
	{"tokyo", 0, 9},
	{"london", 8, 17},
	{"new_york", 13, 22},
}

// TimeOfDayScore rates the session activity at ts: overlaps 0.9, London or
// New York alone 0.8, Tokyo alone 0.7, off-hours 0.4.
func TimeOfDayScore(ts time.Time) float64 {
	hour := ts.UTC().Hour()

	active := []string{}
	for _, s := range tradingSessions {
		if hour >= s.open && hour < s.close {
			active = append(active, s.name)
		}
	}

	switch {
	case len(active) >= 2:
		return 0.9
	case len(active) == 1 && active[0] == "tokyo":
		return 0.7
	case len(active) == 1:
		return 0.8
	default:
		return 0.4
	}
}

func (cs *ConfluenceScorer) explain(signal *models.Signal, score float64, risk models.RiskLevel, breakdown map[string]FactorContribution) string {
	caser := cases.Title(language.English)
	kind := caser.String(strings.ReplaceAll(string(signal.Type), "_", " "))

	strongest, weakest := "", ""
	for _, name := range cs.names {
		if strongest == "" || breakdown[name].Value > breakdown[strongest].Value {
			strongest = name
		}
		if weakest == "" || breakdown[name].Value < breakdown[weakest].Value {
			weakest = name
		}
	}

	return fmt.Sprintf("%s %s scored %.2f (%s risk); strongest factor %s %.2f, weakest %s %.2f",
		caser.String(string(signal.Direction)), kind, score, risk,
		strongest, breakdown[strongest].Value, weakest, breakdown[weakest].Value)
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
