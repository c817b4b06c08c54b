package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/ubi/internal/infrastructure/monitoring"
	"github.com/turtacn/ubi/pkg/constants"
)

// RequestID assigns every request an id, reusing the caller's X-Request-ID when present.
// RequestID 为每个请求分配 ID，优先沿用调用方的 X-Request-ID。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(string(constants.ContextKeyRequestID), id)
		c.Header(constants.HeaderRequestID, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), constants.ContextKeyRequestID, id))
		c.Next()
	}
}

// Observability starts a server span per request and records request metrics.
// Incoming W3C trace headers are honoured so the span joins the caller's trace.
// Metrics are labelled by route template to keep cardinality low.
// Observability 为每个请求启动服务端 Span，并记录请求指标。
func Observability(tm *monitoring.TracingManager, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.ActiveRequestsInc()
		defer metrics.ActiveRequestsDec()

		path := c.FullPath()
		if path == "" {
			path = "not_found"
		}

		ctx := tm.ExtractTraceContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tm.StartSpan(ctx, c.Request.Method+" "+path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethodKey.String(c.Request.Method),
				semconv.HTTPRouteKey.String(path),
			),
		)
		defer span.End()

		// Without a sampled trace, responses and logs still correlate on the request id.
		traceID := tm.GetTraceID(ctx)
		if traceID == "" {
			traceID = c.GetString(string(constants.ContextKeyRequestID))
		}
		ctx = context.WithValue(ctx, constants.ContextKeyTraceID, traceID)
		c.Set(string(constants.ContextKeyTraceID), traceID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		metrics.ObserveRequest(path, c.Request.Method, status, time.Since(start))
		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(status),
			attribute.String("http.client_ip", c.ClientIP()),
		)
	}
}
