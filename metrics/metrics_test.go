package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ceyewan/authzkit/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMeter(t *testing.T) (Meter, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := New(&Config{Enabled: true, ServiceName: "metrics-test"}, WithReader(reader))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m, reader
}

// counterValue 汇总指定计数器中满足 match 的数据点
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string, match map[string]string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "%s 不是 int64 Sum", name)
			for _, dp := range sum.DataPoints {
				if matches(dp.Attributes, match) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func matches(set attribute.Set, want map[string]string) bool {
	for k, v := range want {
		got, ok := set.Value(attribute.Key(k))
		if !ok || got.AsString() != v {
			return false
		}
	}
	return true
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	m, err := New(&Config{Enabled: false})
	require.NoError(t, err)
	assert.IsType(t, &noopMeter{}, m)
}

func TestDiscard(t *testing.T) {
	ctx := context.Background()
	m := Discard()

	c, err := m.Counter("c", "c")
	require.NoError(t, err)
	c.Inc(ctx)
	g, err := m.Gauge("g", "g")
	require.NoError(t, err)
	g.Dec(ctx)
	h, err := m.Histogram("h", "h", WithBuckets([]float64{1, 2}))
	require.NoError(t, err)
	h.Record(ctx, 1)
	assert.NoError(t, m.Shutdown(ctx))
}

func TestCounter(t *testing.T) {
	m, reader := newTestMeter(t)
	ctx := context.Background()

	c, err := m.Counter("calls_total", "calls", WithUnit("1"))
	require.NoError(t, err)
	c.Inc(ctx, L(LabelOperation, "check"))
	c.Add(ctx, 4, L(LabelOperation, "check"))
	c.Inc(ctx, L(LabelOperation, "write"))

	assert.Equal(t, int64(5), counterValue(t, reader, "calls_total", map[string]string{LabelOperation: "check"}))
	assert.Equal(t, int64(6), counterValue(t, reader, "calls_total", nil))
}

func TestClientMetrics(t *testing.T) {
	m, reader := newTestMeter(t)
	ctx := context.Background()

	cm, err := NewClientMetrics(m)
	require.NoError(t, err)

	cm.ObserveCall(ctx, "check", "grpc", nil, 10*time.Millisecond)
	cm.ObserveCall(ctx, "check", "rest", xerrors.Newf(xerrors.KindTimeout, "slow"), time.Second)
	cm.Fallback(ctx, "grpc", "rest", xerrors.KindUnavailable)
	cm.Retry(ctx, "check", xerrors.KindUnavailable)
	cm.BreakerTransition(ctx, "grpc@backend", "closed", "open")
	cm.BreakerReject(ctx, "grpc@backend")
	cm.CacheLookup(ctx, true)
	cm.RateLimited(ctx, "check")

	assert.Equal(t, int64(1), counterValue(t, reader, MetricRequestsTotal, map[string]string{
		LabelTransport: "rest", LabelOutcome: OutcomeError, LabelKind: "timeout",
	}))
	assert.Equal(t, int64(1), counterValue(t, reader, MetricRequestsTotal, map[string]string{
		LabelKind: "none",
	}))
	assert.Equal(t, int64(1), counterValue(t, reader, MetricFallbacksTotal, map[string]string{
		LabelFrom: "grpc", LabelTo: "rest", LabelReason: "unavailable",
	}))
	assert.Equal(t, int64(1), counterValue(t, reader, MetricBreakerTransitions, map[string]string{LabelTo: "open"}))
	assert.Equal(t, int64(1), counterValue(t, reader, MetricCacheLookupsTotal, map[string]string{LabelOutcome: "hit"}))

	var nilMetrics *ClientMetrics
	nilMetrics.ObserveCall(ctx, "check", "grpc", errors.New("x"), 0)
	nilMetrics.InflightInc(ctx)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Outcome(nil))
	assert.Equal(t, OutcomeError, Outcome(errors.New("x")))
	assert.Equal(t, "none", KindLabel(nil))
	assert.Equal(t, "rate_limited", KindLabel(&xerrors.Error{Kind: xerrors.KindRateLimited}))
	assert.Equal(t, "a=1|b=2", labelKey([]Label{L("a", "1"), L("b", "2")}))
}
