package database

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/celebrum-patterns/internal/telemetry"
)

// RedisTracingHook records a client span per Redis command or pipeline
type RedisTracingHook struct {
	attrs []attribute.KeyValue
}

// NewRedisTracingHook creates a hook tagging spans with the server address
func NewRedisTracingHook(addr string, db int) *RedisTracingHook {
	return &RedisTracingHook{attrs: []attribute.KeyValue{
		attribute.String("db.system", "redis"),
		attribute.String("server.address", addr),
		attribute.Int("db.redis.database_index", db),
	}}
}

// DialHook implements redis.Hook
func (h *RedisTracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		ctx, span := telemetry.GetCacheTracer().Start(ctx, "redis.dial",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(h.attrs...),
		)
		defer span.End()

		conn, err := next(ctx, network, addr)
		telemetry.RecordError(span, err)
		return conn, err
	}
}

// ProcessHook implements redis.Hook
func (h *RedisTracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := telemetry.GetCacheTracer().Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(h.attrs...),
			trace.WithAttributes(attribute.String("db.operation", cmd.Name())),
		)
		defer span.End()

		err := next(ctx, cmd)
		recordRedisError(span, err)
		return err
	}
}

// ProcessPipelineHook implements redis.Hook
func (h *RedisTracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := telemetry.GetCacheTracer().Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(h.attrs...),
			trace.WithAttributes(attribute.String("db.redis.num_cmd", strconv.Itoa(len(cmds)))),
		)
		defer span.End()

		err := next(ctx, cmds)
		recordRedisError(span, err)
		return err
	}
}

// recordRedisError ignores redis.Nil, which is a cache miss rather than a failure
func recordRedisError(span trace.Span, err error) {
	if errors.Is(err, redis.Nil) {
		return
	}
	telemetry.RecordError(span, err)
}
