package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
	})
	return rec
}

func TestStoreSpan(t *testing.T) {
	rec := withRecorder(t)

	_, span := StoreSpan(context.Background(), "insert", "tweets")
	EndWithError(span, errors.New("disk full"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "store.insert", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "disk full", ended[0].Status().Description)
}

func TestEndWithError_NilIsNoop(t *testing.T) {
	rec := withRecorder(t)

	_, span := SubscriptionSpan(context.Background(), "geo", "abc")
	EndWithError(span, nil)
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "stream.subscription", ended[0].Name())
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
}
