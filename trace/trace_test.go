package trace

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
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/authzkit/xerrors"
)

func setupTracerForTest(t *testing.T, formats ...string) (oteltrace.Tracer, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})

	propagator, err := Propagator(formats)
	require.NoError(t, err)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)
	return tp.Tracer("test"), recorder
}

func TestStartProducerSpan(t *testing.T) {
	tracer, recorder := setupTracerForTest(t)

	_, span, headers := StartProducerSpan(context.Background(), tracer, "authz.audit")
	span.End()

	assert.NotEmpty(t, headers["traceparent"], "traceparent header should be injected")

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, SpanNameAudit("authz.audit"), spans[0].Name())
	assert.Equal(t, oteltrace.SpanKindProducer, spans[0].SpanKind())
}

func TestPropagatorB3(t *testing.T) {
	tracer, _ := setupTracerForTest(t, "b3")

	ctx, span := tracer.Start(context.Background(), "parent")
	defer span.End()

	headers := map[string]string{}
	Inject(ctx, headers)
	require.NotEmpty(t, headers["b3"])
	assert.Empty(t, headers["traceparent"])

	extracted := oteltrace.SpanContextFromContext(Extract(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), extracted.TraceID())
	assert.Equal(t, span.SpanContext().SpanID(), extracted.SpanID())
	assert.True(t, extracted.IsRemote())
}

func TestStartClientSpanAndMarkError(t *testing.T) {
	tracer, recorder := setupTracerForTest(t)

	_, span := StartClientSpan(context.Background(), tracer, "check")
	MarkSpanError(span, xerrors.Newf(xerrors.KindUnavailable, "down"))
	MarkSpanError(span, nil)
	MarkSpanError(nil, errors.New("ignored"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "authz.client check", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "check", attrs[AttrAuthzOperation])
	assert.Equal(t, "unavailable", attrs[AttrErrorKind])
}

func TestValidateConfig(t *testing.T) {
	assert.Error(t, validateConfig(nil))
	cfg := DefaultConfig("svc")
	assert.NoError(t, validateConfig(cfg))

	cfg.Formats = []string{"zipkin"}
	err := validateConfig(cfg)
	assert.Equal(t, xerrors.KindConfiguration, xerrors.KindOf(err))

	cfg = DefaultConfig("svc")
	cfg.Sampler = 2
	assert.Error(t, validateConfig(cfg))
}

func TestDiscard(t *testing.T) {
	shutdown, err := Discard("authzkit-test", "w3c", "b3multi")
	require.NoError(t, err)
	defer shutdown(context.Background())

	fields := otel.GetTextMapPropagator().Fields()
	assert.Contains(t, fields, "traceparent")
	assert.Contains(t, fields, "x-b3-traceid")
}
