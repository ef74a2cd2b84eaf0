package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-patterns/internal/middleware"
	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/services"
	"github.com/irfndi/celebrum-patterns/internal/utils"
)

// pricePlaces is the precision of prices in responses
const pricePlaces = 8

// CandleInput is one OHLCV bar. Prices accept JSON numbers or strings.
type CandleInput struct {
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

// ScanRequest is the body of a single-window scan
type ScanRequest struct {
	Symbol    string        `json:"symbol" binding:"required"`
	Exchange  string        `json:"exchange"`
	Timeframe string        `json:"timeframe" binding:"required"`
	Candles   []CandleInput `json:"candles" binding:"required,dive"`
	// Options holds partial overrides merged onto the server defaults
	Options   json.RawMessage `json:"options,omitempty"`
	Sentiment *float64        `json:"sentiment,omitempty" binding:"omitempty,gte=0,lte=1"`
}

// BatchScanRequest is the body of a multi-window scan
type BatchScanRequest struct {
	Requests []ScanRequest `json:"requests" binding:"required,min=1,dive"`
}

// SignalResponse is a scored signal with prices as decimals
type SignalResponse struct {
	ID              string             `json:"id"`
	Type            models.PatternType `json:"type"`
	Direction       models.Direction   `json:"direction"`
	EntryPrice      decimal.Decimal    `json:"entry_price"`
	StopLoss        decimal.Decimal    `json:"stop_loss"`
	TakeProfit      decimal.Decimal    `json:"take_profit"`
	ZoneLow         decimal.Decimal    `json:"zone_low"`
	ZoneHigh        decimal.Decimal    `json:"zone_high"`
	RiskRewardRatio float64            `json:"risk_reward_ratio"`
	Strength        float64            `json:"strength"`
	Score           float64            `json:"score"`
	RiskLevel       models.RiskLevel   `json:"risk_level"`
	Timestamp       time.Time          `json:"timestamp"`
	Factors         map[string]float64 `json:"factors"`
	Description     string             `json:"description"`
	Explanation     string             `json:"explanation"`
}

// ScanResponse is the result of one window
type ScanResponse struct {
	Symbol      string                     `json:"symbol"`
	Timeframe   string                     `json:"timeframe"`
	CandleCount int                        `json:"candle_count"`
	SwingPoints int                        `json:"swing_points"`
	Detected    map[models.PatternType]int `json:"detected"`
	Signals     []SignalResponse           `json:"signals"`
	Cached      bool                       `json:"cached"`
	ScannedAt   time.Time                  `json:"scanned_at"`
	Error       string                     `json:"error,omitempty"`
}

// PatternHandler serves the pattern scan endpoints
type PatternHandler struct {
	scanner      *services.PatternScanner
	validator    *services.MarketDataValidator
	maxBatchSize int
	logger       *logrus.Logger
}

// NewPatternHandler creates a pattern handler
func NewPatternHandler(scanner *services.PatternScanner, validator *services.MarketDataValidator, maxBatchSize int, logger *logrus.Logger) *PatternHandler {
	if logger == nil {
		logger = logrus.New()
	}
	if maxBatchSize < 1 {
		maxBatchSize = 1
	}
	return &PatternHandler{
		scanner:      scanner,
		validator:    validator,
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}
}

// Scan analyses one candle window
func (h *PatternHandler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}
	middleware.AddSpanAttribute(c, "scan.symbol", req.Symbol)
	middleware.AddSpanAttribute(c, "scan.candles", len(req.Candles))

	scanReq, err := h.toScanRequest(req)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.scanner.Analyze(c.Request.Context(), scanReq)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toScanResponse(result))
}

// ScanBatch analyses several windows concurrently. A window that fails
// validation reports its error without failing the batch.
func (h *PatternHandler) ScanBatch(c *gin.Context) {
	var req BatchScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}
	if len(req.Requests) > h.maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Batch too large",
			"message": fmt.Sprintf("at most %d windows per batch, got %d", h.maxBatchSize, len(req.Requests)),
		})
		return
	}
	middleware.AddSpanAttribute(c, "scan.requests", len(req.Requests))

	responses := make([]ScanResponse, len(req.Requests))
	var pending []services.ScanRequest
	var positions []int
	for i, r := range req.Requests {
		scanReq, err := h.toScanRequest(r)
		if err != nil {
			responses[i] = ScanResponse{
				Symbol:    r.Symbol,
				Timeframe: r.Timeframe,
				Signals:   []SignalResponse{},
				Error:     err.Error(),
				ScannedAt: time.Now().UTC(),
			}
			continue
		}
		pending = append(pending, scanReq)
		positions = append(positions, i)
	}

	results, err := h.scanner.ScanMany(c.Request.Context(), pending)
	if err != nil {
		h.writeError(c, err)
		return
	}
	for k, result := range results {
		responses[positions[k]] = toScanResponse(result)
	}

	c.JSON(http.StatusOK, gin.H{"results": responses, "count": len(responses)})
}

func (h *PatternHandler) toScanRequest(req ScanRequest) (services.ScanRequest, error) {
	data := &models.PriceData{
		Symbol:     req.Symbol,
		Exchange:   req.Exchange,
		Timeframe:  req.Timeframe,
		Timestamps: make([]time.Time, len(req.Candles)),
		Open:       make([]decimal.Decimal, len(req.Candles)),
		High:       make([]decimal.Decimal, len(req.Candles)),
		Low:        make([]decimal.Decimal, len(req.Candles)),
		Close:      make([]decimal.Decimal, len(req.Candles)),
		Volume:     make([]decimal.Decimal, len(req.Candles)),
	}
	for i, c := range req.Candles {
		data.Timestamps[i] = c.Timestamp
		data.Open[i] = c.Open
		data.High[i] = c.High
		data.Low[i] = c.Low
		data.Close[i] = c.Close
		data.Volume[i] = c.Volume
	}

	candles, err := h.validator.CandlesFromPriceData(data)
	if err != nil {
		return services.ScanRequest{}, err
	}

	scanReq := services.ScanRequest{
		Symbol:    req.Symbol,
		Timeframe: req.Timeframe,
		Candles:   candles,
		Sentiment: req.Sentiment,
	}
	if len(req.Options) > 0 {
		opts := h.scanner.Defaults()
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			return services.ScanRequest{}, utils.NewDataValidationErrorf("options", -1, "%v", err)
		}
		if opts.TopN < 0 || opts.MinStrength < 0 || opts.MinRiskReward < 0 {
			return services.ScanRequest{}, utils.NewDataValidationError("options", -1, "filters must not be negative")
		}
		for _, p := range opts.Patterns {
			switch p {
			case models.PatternOrderBlock, models.PatternFairValueGap, models.PatternBreakerBlock:
			default:
				return services.ScanRequest{}, utils.NewDataValidationErrorf("options", -1, "unknown pattern type %q", p)
			}
		}
		scanReq.Options = &opts
	}
	return scanReq, nil
}

func (h *PatternHandler) writeError(c *gin.Context, err error) {
	var validationErr *utils.DataValidationError
	if errors.As(err, &validationErr) {
		body := gin.H{
			"error":   "Invalid market data",
			"message": err.Error(),
			"field":   validationErr.Field,
		}
		if validationErr.Index >= 0 {
			body["index"] = validationErr.Index
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}

	middleware.RecordError(c, err)
	h.logger.WithContext(c.Request.Context()).WithError(err).Error("Pattern scan failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Pattern scan failed",
		"message": err.Error(),
	})
}

func toScanResponse(result *services.ScanResult) ScanResponse {
	resp := ScanResponse{
		Symbol:      result.Symbol,
		Timeframe:   result.Timeframe,
		CandleCount: result.CandleCount,
		SwingPoints: len(result.SwingPoints),
		Detected:    result.Detected,
		Signals:     make([]SignalResponse, 0, len(result.Signals)),
		Cached:      result.Cached,
		ScannedAt:   result.ScannedAt,
		Error:       result.Error,
	}
	for _, s := range result.Signals {
		resp.Signals = append(resp.Signals, toSignalResponse(s))
	}
	return resp
}

func toSignalResponse(s *services.ScoredSignal) SignalResponse {
	base := s.Signal.Base()
	low, high := s.Signal.PriceRange()
	return SignalResponse{
		ID:              base.ID,
		Type:            base.Type,
		Direction:       base.Direction,
		EntryPrice:      price(base.EntryPrice),
		StopLoss:        price(base.StopLoss),
		TakeProfit:      price(base.TakeProfit),
		ZoneLow:         price(low),
		ZoneHigh:        price(high),
		RiskRewardRatio: base.RiskRewardRatio,
		Strength:        base.Strength,
		Score:           s.Score,
		RiskLevel:       s.RiskLevel,
		Timestamp:       base.Timestamp,
		Factors:         s.Factors,
		Description:     base.Description,
		Explanation:     s.Explanation,
	}
}

func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(pricePlaces)
}
