package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-patterns/internal/cache"
	"github.com/irfndi/celebrum-patterns/internal/testutil"
)

type MockScanCache struct {
	mock.Mock
}

func (m *MockScanCache) GetStats() cache.SignalCacheStats {
	args := m.Called()
	return args.Get(0).(cache.SignalCacheStats)
}

func (m *MockScanCache) BreakerState() cache.CircuitBreakerState {
	args := m.Called()
	return args.Get(0).(cache.CircuitBreakerState)
}

func (m *MockScanCache) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func newCacheRouter(scanCache ScanCache) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewCacheHandler(scanCache, quietLogger())
	router := gin.New()
	router.GET("/cache", h.GetCacheStats)
	router.DELETE("/cache", h.ClearCache)
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestCacheHandler_GetCacheStats(t *testing.T) {
	m := &MockScanCache{}
	m.On("GetStats").Return(cache.SignalCacheStats{Hits: 3, Misses: 1, Sets: 1})
	m.On("BreakerState").Return(cache.Closed)

	w := serve(newCacheRouter(m), http.MethodGet, "/cache")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Enabled bool                   `json:"enabled"`
		Data    cache.SignalCacheStats `json:"data"`
		HitRate float64                `json:"hit_rate"`
		Breaker string                 `json:"breaker"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Enabled)
	assert.Equal(t, int64(3), body.Data.Hits)
	assert.Equal(t, 75.0, body.HitRate)
	assert.Equal(t, cache.Closed.String(), body.Breaker)
	m.AssertExpectations(t)
}

func TestCacheHandler_ClearCache(t *testing.T) {
	t.Run("cleared", func(t *testing.T) {
		m := &MockScanCache{}
		m.On("Clear", mock.Anything).Return(nil)

		w := serve(newCacheRouter(m), http.MethodDelete, "/cache")
		assert.Equal(t, http.StatusOK, w.Code)
		m.AssertExpectations(t)
	})

	t.Run("redis failure", func(t *testing.T) {
		m := &MockScanCache{}
		m.On("Clear", mock.Anything).Return(errors.New("scan failed"))

		w := serve(newCacheRouter(m), http.MethodDelete, "/cache")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "scan failed")
	})
}

func TestCacheHandler_Disabled(t *testing.T) {
	router := newCacheRouter(nil)

	w := serve(router, http.MethodGet, "/cache")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"enabled":false`)

	w = serve(router, http.MethodDelete, "/cache")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCacheHandler_WithRedis(t *testing.T) {
	mr, client := testutil.NewMiniredis(t)

	signalCache := cache.NewSignalCache(client, 0, quietLogger())
	require.NoError(t, mr.Set("pattern_scan:EUR/USD:1h:abc", "{}"))
	require.NoError(t, mr.Set("unrelated", "keep"))

	w := serve(newCacheRouter(signalCache), http.MethodDelete, "/cache")
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, mr.Exists("pattern_scan:EUR/USD:1h:abc"))
	assert.True(t, mr.Exists("unrelated"))
}
