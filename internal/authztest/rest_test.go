package authztest

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/transport/resttransport"
)

func TestRESTHandler_ContinuesUpstreamTrace(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	propagator, err := trace.Propagator([]string{"w3c", "b3"})
	require.NoError(t, err)

	prevTP, prevProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
		_ = tp.Shutdown(context.Background())
	})

	srv := StartREST(t, NewBackend())

	cases := []struct {
		name   string
		header string
		value  string
	}{
		{"traceparent", "traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		{"b3", "b3", "4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := len(recorder.Ended())
			req, err := http.NewRequest(http.MethodGet, srv.URL+resttransport.PathHealth, nil)
			require.NoError(t, err)
			req.Header.Set(tc.header, tc.value)

			resp, err := srv.Client().Do(req)
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)

			// 服务端 Span 在响应写出后结束
			require.Eventually(t, func() bool { return len(recorder.Ended()) == before+1 }, time.Second, 5*time.Millisecond)
			span := recorder.Ended()[before]
			assert.Equal(t, oteltrace.SpanKindServer, span.SpanKind())
			assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", span.SpanContext().TraceID().String())
			assert.Equal(t, "00f067aa0ba902b7", span.Parent().SpanID().String())
			assert.True(t, span.Parent().IsRemote())
		})
	}
}
