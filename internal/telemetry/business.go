package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// BusinessTracer wraps the business tracer with helpers for pattern scans
type BusinessTracer struct {
	tracer trace.Tracer
}

// NewBusinessTracer creates a BusinessTracer backed by the global provider
func NewBusinessTracer() *BusinessTracer {
	return &BusinessTracer{tracer: GetBusinessTracer()}
}

// ScanMetrics summarises one scan for span attributes
type ScanMetrics struct {
	SwingPoints  int
	Detected     int
	Returned     int
	Cached       bool
	TopScore     float64
	ScanDuration time.Duration
}

// TracePatternScan starts a span covering a single symbol scan.
func (bt *BusinessTracer) TracePatternScan(ctx context.Context, symbol, timeframe string, candles int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "pattern.scan",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("scan.symbol", symbol),
			attribute.String("scan.timeframe", timeframe),
			attribute.Int("scan.candles", candles),
		),
	)
}

// TraceBatchScan starts a span covering a batch of scans
func (bt *BusinessTracer) TraceBatchScan(ctx context.Context, requests, workers int) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "pattern.scan_batch",
		trace.WithAttributes(
			attribute.Int("scan.requests", requests),
			attribute.Int("scan.workers", workers),
		),
	)
}

// TraceDetector starts a child span for one detector run
func (bt *BusinessTracer) TraceDetector(ctx context.Context, kind string) (context.Context, trace.Span) {
	return bt.tracer.Start(ctx, "pattern.detect", trace.WithAttributes(attribute.String("pattern.kind", kind)))
}

// RecordScanResult records the outcome of a scan onto span. A nil err
// marks the span OK.
func (bt *BusinessTracer) RecordScanResult(span trace.Span, m ScanMetrics, err error) {
	span.SetAttributes(
		attribute.Int("scan.swing_points", m.SwingPoints),
		attribute.Int("scan.detected", m.Detected),
		attribute.Int("scan.returned", m.Returned),
		attribute.Bool("scan.cached", m.Cached),
		attribute.Float64("scan.top_score", m.TopScore),
		attribute.Int64("scan.duration_ms", m.ScanDuration.Milliseconds()),
	)
	if err != nil {
		RecordError(span, err)
		return
	}
	span.SetStatus(codes.Ok, "")
}
