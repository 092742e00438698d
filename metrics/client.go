package metrics

import (
	"context"
	"time"

	"github.com/ceyewan/authzkit/xerrors"
)

// ClientMetrics 封装鉴权客户端的指标集：调用 RED、重试、降级、熔断、缓存和限流。
// 所有方法对 nil 接收者安全。
type ClientMetrics struct {
	requests     Counter
	duration     Histogram
	retries      Counter
	fallbacks    Counter
	transitions  Counter
	rejects      Counter
	cacheLookups Counter
	rateLimited  Counter
	inflight     Gauge
}

// NewClientMetrics 在 m 上注册全部客户端指标
func NewClientMetrics(m Meter) (*ClientMetrics, error) {
	if m == nil {
		return nil, xerrors.New("metrics: meter is nil")
	}

	cm := &ClientMetrics{}
	var err error
	if cm.requests, err = m.Counter(MetricRequestsTotal, "Total number of authorization calls."); err != nil {
		return nil, xerrors.Wrap(err, "create request counter")
	}
	if cm.duration, err = m.Histogram(MetricRequestDuration, "Authorization call duration in seconds.",
		WithUnit("s"), WithBuckets(defaultDurationBuckets)); err != nil {
		return nil, xerrors.Wrap(err, "create duration histogram")
	}
	if cm.retries, err = m.Counter(MetricRetriesTotal, "Total number of retry attempts."); err != nil {
		return nil, xerrors.Wrap(err, "create retry counter")
	}
	if cm.fallbacks, err = m.Counter(MetricFallbacksTotal, "Total number of transport fallbacks."); err != nil {
		return nil, xerrors.Wrap(err, "create fallback counter")
	}
	if cm.transitions, err = m.Counter(MetricBreakerTransitions, "Circuit breaker state transitions."); err != nil {
		return nil, xerrors.Wrap(err, "create breaker transition counter")
	}
	if cm.rejects, err = m.Counter(MetricBreakerRejectsTotal, "Calls rejected by an open circuit."); err != nil {
		return nil, xerrors.Wrap(err, "create breaker reject counter")
	}
	if cm.cacheLookups, err = m.Counter(MetricCacheLookupsTotal, "Decision cache lookups."); err != nil {
		return nil, xerrors.Wrap(err, "create cache counter")
	}
	if cm.rateLimited, err = m.Counter(MetricRateLimitedTotal, "Calls rejected by the client-side rate limiter."); err != nil {
		return nil, xerrors.Wrap(err, "create rate limit counter")
	}
	if cm.inflight, err = m.Gauge(MetricInflightRequests, "Authorization calls currently in flight."); err != nil {
		return nil, xerrors.Wrap(err, "create inflight gauge")
	}
	return cm, nil
}

// ObserveCall 记录一次逻辑调用的结果和耗时
func (m *ClientMetrics) ObserveCall(ctx context.Context, operation, transport string, err error, d time.Duration) {
	if m == nil {
		return
	}
	labels := []Label{
		L(LabelOperation, operation),
		L(LabelTransport, transport),
		L(LabelOutcome, Outcome(err)),
		L(LabelKind, KindLabel(err)),
	}
	m.requests.Inc(ctx, labels...)
	m.duration.Record(ctx, d.Seconds(), labels...)
}

func (m *ClientMetrics) Retry(ctx context.Context, operation string, kind xerrors.Kind) {
	if m == nil {
		return
	}
	m.retries.Inc(ctx, L(LabelOperation, operation), L(LabelKind, kind.String()))
}

func (m *ClientMetrics) Fallback(ctx context.Context, from, to string, reason xerrors.Kind) {
	if m == nil {
		return
	}
	m.fallbacks.Inc(ctx, L(LabelFrom, from), L(LabelTo, to), L(LabelReason, reason.String()))
}

func (m *ClientMetrics) BreakerTransition(ctx context.Context, route, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Inc(ctx, L(LabelRoute, route), L(LabelFrom, from), L(LabelTo, to))
}

func (m *ClientMetrics) BreakerReject(ctx context.Context, route string) {
	if m == nil {
		return
	}
	m.rejects.Inc(ctx, L(LabelRoute, route))
}

func (m *ClientMetrics) CacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Inc(ctx, L(LabelOutcome, result))
}

func (m *ClientMetrics) RateLimited(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	m.rateLimited.Inc(ctx, L(LabelOperation, operation))
}

func (m *ClientMetrics) InflightInc(ctx context.Context) {
	if m == nil {
		return
	}
	m.inflight.Inc(ctx)
}

func (m *ClientMetrics) InflightDec(ctx context.Context) {
	if m == nil {
		return
	}
	m.inflight.Dec(ctx)
}
