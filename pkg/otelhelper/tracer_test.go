package otelhelper_test

import (
	"errors"
	"testing"

	"github.com/dukex/actflow/pkg/otelhelper"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestStartSpanAndSetError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := provider.Tracer("test")

	_, span := otelhelper.StartSpan(t.Context(), tracer, "step.execute", attribute.String(otelhelper.StepIDKey, "stp-a"))
	otelhelper.SetError(span, errors.New("boom"), attribute.String(otelhelper.NodeIDKey, "a"))
	span.End()

	ended := recorder.Ended()
	if assert.Len(t, ended, 1) {
		assert.Equal(t, "step.execute", ended[0].Name())
		assert.Equal(t, codes.Error, ended[0].Status().Code)
		assert.Equal(t, "boom", ended[0].Status().Description)
	}
}

func TestNoopTracer(t *testing.T) {
	_, span := otelhelper.StartSpan(t.Context(), otelhelper.NoopTracer(), "noop")
	defer span.End()

	assert.False(t, span.SpanContext().IsValid())
}
