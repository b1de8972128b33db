package tracing

import (
	"context"

	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// tracer returns the package tracer. This must be a function (not a package-level var)
// because the global TracerProvider isn't set until Init() runs.
func tracer() trace.Tracer {
	return otel.Tracer("tweetcastr")
}

// Init creates and registers a tracer provider with an OTLP HTTP exporter
// sending to endpoint (host:port). Returns the provider so the caller can
// defer Shutdown. Until Init runs, spans are no-ops.
func Init(ctx context.Context, endpoint string) (*sdktrace.TracerProvider, error) {
	// Bridge OTel's internal logger to zerolog
	otel.SetLogger(zerologr.New(&log.Logger))

	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("tweetcastr"),
		)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// StoreSpan starts a span for a destination operation with standard attributes.
func StoreSpan(ctx context.Context, op, collection string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "store."+op,
		trace.WithAttributes(
			attribute.String("store.operation", op),
			attribute.String("store.collection", collection),
		),
	)
}

// SubscriptionSpan starts a span covering one stream subscription.
func SubscriptionSpan(ctx context.Context, mode, sessionID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "stream.subscription",
		trace.WithAttributes(
			attribute.String("stream.mode", mode),
			attribute.String("stream.session_id", sessionID),
		),
	)
}

// EndWithError records an error on a span and sets its status.
// If err is nil, this is a no-op.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
