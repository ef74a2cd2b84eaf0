package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracing(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
	return recorder
}

func attributes(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestTelemetryMiddleware(t *testing.T) {
	recorder := setupTracing(t)

	router := gin.New()
	router.Use(TelemetryMiddleware("/health"))
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })
	router.POST("/scan/:symbol", func(c *gin.Context) {
		AddSpanAttribute(c, "scan.symbol", c.Param("symbol"))
		AddSpanAttribute(c, "scan.candles", 120)
		AddSpanAttribute(c, "scan.cached", false)
		AddSpanAttribute(c, "scan.other", []int{1})
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	router.GET("/boom", func(c *gin.Context) {
		RecordError(c, errors.New("scanner exploded"))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "boom"})
	})

	t.Run("traces routed request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/scan/BTC", nil)
		req.Header.Set("User-Agent", "test-agent")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		span := ended[0]
		assert.Equal(t, "HTTP POST /scan/:symbol", span.Name())
		assert.Equal(t, codes.Ok, span.Status().Code)

		attrs := attributes(span)
		assert.Equal(t, "/scan/:symbol", attrs["http.route"].AsString())
		assert.Equal(t, "test-agent", attrs["http.user_agent"].AsString())
		assert.Equal(t, int64(200), attrs["http.status_code"].AsInt64())
		assert.Equal(t, "BTC", attrs["scan.symbol"].AsString())
		assert.Equal(t, int64(120), attrs["scan.candles"].AsInt64())
		assert.False(t, attrs["scan.cached"].AsBool())
		assert.Equal(t, "[1]", attrs["scan.other"].AsString())
	})

	t.Run("skips configured paths", func(t *testing.T) {
		before := len(recorder.Ended())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, recorder.Ended(), before)
	})

	t.Run("marks server errors", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.Equal(t, http.StatusInternalServerError, w.Code)

		ended := recorder.Ended()
		span := ended[len(ended)-1]
		assert.Equal(t, codes.Error, span.Status().Code)
		require.NotEmpty(t, span.Events())
		assert.Equal(t, "exception", span.Events()[0].Name)
	})
}

func TestTelemetryMiddleware_ContinuesIncomingTrace(t *testing.T) {
	recorder := setupTracing(t)

	router := gin.New()
	router.Use(TelemetryMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	router.ServeHTTP(httptest.NewRecorder(), req)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", ended[0].SpanContext().TraceID().String())
	assert.Equal(t, "00f067aa0ba902b7", ended[0].Parent().SpanID().String())
}

func TestTelemetryMiddleware_ClientErrorIsNotSpanError(t *testing.T) {
	recorder := setupTracing(t)

	router := gin.New()
	router.Use(TelemetryMiddleware())
	router.POST("/scan", func(c *gin.Context) { c.JSON(http.StatusBadRequest, gin.H{"error": "bad"}) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/scan", nil))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.NotEqual(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, int64(400), attributes(ended[0])["http.status_code"].AsInt64())
}
