package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-patterns/internal/models"
	"github.com/irfndi/celebrum-patterns/internal/services"
	"github.com/irfndi/celebrum-patterns/internal/testutil"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newPatternRouter(maxBatch int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := quietLogger()
	validator := services.NewMarketDataValidator(logger)
	scanner := services.NewPatternScanner(
		services.DefaultPatternScannerConfig(),
		services.NewConfluenceScorer(nil, logger),
		validator,
		nil,
		logger,
	)
	h := NewPatternHandler(scanner, validator, maxBatch, logger)

	router := gin.New()
	router.POST("/scan", h.Scan)
	router.POST("/scan/batch", h.ScanBatch)
	return router
}

func candleInputs(candles []models.Candle) []CandleInput {
	out := make([]CandleInput, len(candles))
	for i, c := range candles {
		out[i] = CandleInput{
			Timestamp: c.Timestamp,
			Open:      decimal.NewFromFloat(c.Open),
			High:      decimal.NewFromFloat(c.High),
			Low:       decimal.NewFromFloat(c.Low),
			Close:     decimal.NewFromFloat(c.Close),
			Volume:    decimal.NewFromFloat(c.Volume),
		}
	}
	return out
}

func postJSON(t *testing.T, router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPatternHandler_Scan(t *testing.T) {
	router := newPatternRouter(10)

	w := postJSON(t, router, "/scan", ScanRequest{
		Symbol:    "EUR/USD",
		Timeframe: "1h",
		Candles:   candleInputs(testutil.OrderBlockWindow()),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "EUR/USD", resp.Symbol)
	assert.Equal(t, 10, resp.CandleCount)
	assert.Equal(t, 1, resp.Detected[models.PatternOrderBlock])
	require.Len(t, resp.Signals, 1)

	signal := resp.Signals[0]
	assert.Equal(t, models.PatternOrderBlock, signal.Type)
	assert.Equal(t, models.Bullish, signal.Direction)
	assert.Equal(t, "1.1042", signal.EntryPrice.String())
	assert.True(t, signal.StopLoss.LessThan(signal.EntryPrice))
	assert.True(t, signal.TakeProfit.GreaterThan(signal.EntryPrice))
	assert.True(t, signal.ZoneLow.LessThan(signal.ZoneHigh))
	assert.NotEmpty(t, signal.Explanation)
	assert.Contains(t, w.Body.String(), `"entry_price":"1.1042"`)
}

func TestPatternHandler_ScanOptions(t *testing.T) {
	router := newPatternRouter(10)

	tests := []struct {
		name        string
		options     string
		wantStatus  int
		wantSignals int
	}{
		{"partial override keeps defaults", `{"top_n": 5}`, http.StatusOK, 1},
		{"strength filter", `{"min_strength": 1.1}`, http.StatusOK, 0},
		{"pattern filter", `{"patterns": ["fair_value_gap"]}`, http.StatusOK, 0},
		{"unknown pattern", `{"patterns": ["head_and_shoulders"]}`, http.StatusBadRequest, 0},
		{"negative filter", `{"top_n": -1}`, http.StatusBadRequest, 0},
		{"malformed", `{"top_n": "many"}`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/scan", ScanRequest{
				Symbol:    "EUR/USD",
				Timeframe: "1h",
				Candles:   candleInputs(testutil.OrderBlockWindow()),
				Options:   json.RawMessage(tt.options),
			})
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Contains(t, w.Body.String(), `"field":"options"`)
				return
			}
			var resp ScanResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Len(t, resp.Signals, tt.wantSignals)
		})
	}
}

func TestPatternHandler_ScanInvalid(t *testing.T) {
	router := newPatternRouter(10)

	t.Run("missing symbol", func(t *testing.T) {
		w := postJSON(t, router, "/scan", gin.H{"timeframe": "1h", "candles": []CandleInput{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid request body")
	})

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/scan", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("high below low", func(t *testing.T) {
		candles := candleInputs(testutil.OrderBlockWindow())
		candles[3].High = candles[3].Low.Sub(decimal.NewFromFloat(0.001))

		w := postJSON(t, router, "/scan", ScanRequest{Symbol: "EUR/USD", Timeframe: "1h", Candles: candles})
		require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "Invalid market data", body["error"])
		assert.EqualValues(t, 3, body["index"])
		assert.NotEmpty(t, body["field"])
	})

	t.Run("sentiment out of range", func(t *testing.T) {
		sentiment := 1.5
		w := postJSON(t, router, "/scan", ScanRequest{
			Symbol:    "EUR/USD",
			Timeframe: "1h",
			Candles:   candleInputs(testutil.OrderBlockWindow()),
			Sentiment: &sentiment,
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPatternHandler_ScanEmptyWindow(t *testing.T) {
	router := newPatternRouter(10)

	w := postJSON(t, router, "/scan", ScanRequest{Symbol: "BTC/USDT", Timeframe: "4h", Candles: []CandleInput{}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Signals)
	assert.Zero(t, resp.CandleCount)
}

func TestPatternHandler_ScanBatch(t *testing.T) {
	router := newPatternRouter(10)

	broken := candleInputs(testutil.OrderBlockWindow())
	broken[0].Timestamp = time.Time{}

	w := postJSON(t, router, "/scan/batch", BatchScanRequest{Requests: []ScanRequest{
		{Symbol: "EUR/USD", Timeframe: "1h", Candles: candleInputs(testutil.OrderBlockWindow())},
		{Symbol: "GBP/USD", Timeframe: "1h", Candles: broken},
		{Symbol: "BTC/USDT", Timeframe: "1h", Candles: candleInputs(testutil.RandomWalkCandles(7, 120, 100))},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Results []ScanResponse `json:"results"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 3, resp.Count)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, "EUR/USD", resp.Results[0].Symbol)
	assert.Empty(t, resp.Results[0].Error)
	assert.Len(t, resp.Results[0].Signals, 1)

	assert.Equal(t, "GBP/USD", resp.Results[1].Symbol)
	assert.NotEmpty(t, resp.Results[1].Error)
	assert.Empty(t, resp.Results[1].Signals)

	assert.Equal(t, "BTC/USDT", resp.Results[2].Symbol)
	assert.Empty(t, resp.Results[2].Error)
	assert.Equal(t, 120, resp.Results[2].CandleCount)
}

func TestPatternHandler_ScanBatchLimits(t *testing.T) {
	router := newPatternRouter(1)

	w := postJSON(t, router, "/scan/batch", BatchScanRequest{Requests: []ScanRequest{
		{Symbol: "EUR/USD", Timeframe: "1h", Candles: candleInputs(testutil.OrderBlockWindow())},
		{Symbol: "GBP/USD", Timeframe: "1h", Candles: candleInputs(testutil.OrderBlockWindow())},
	}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Batch too large")

	w = postJSON(t, router, "/scan/batch", BatchScanRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
