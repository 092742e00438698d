package metrics

import "github.com/ceyewan/authzkit/xerrors"

const (
	LabelOperation = "operation"
	LabelTransport = "transport"
	LabelRoute     = "route"
	LabelOutcome   = "outcome"
	LabelKind      = "kind"
	LabelFrom      = "from"
	LabelTo        = "to"
	LabelReason    = "reason"
	LabelState     = "state"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

const (
	MetricRequestsTotal       = "authz_client_requests_total"
	MetricRequestDuration     = "authz_client_request_duration_seconds"
	MetricRetriesTotal        = "authz_client_retries_total"
	MetricFallbacksTotal      = "authz_client_fallbacks_total"
	MetricBreakerTransitions  = "authz_client_breaker_transitions_total"
	MetricBreakerRejectsTotal = "authz_client_breaker_rejects_total"
	MetricCacheLookupsTotal   = "authz_client_cache_lookups_total"
	MetricRateLimitedTotal    = "authz_client_ratelimited_total"
	MetricInflightRequests    = "authz_client_inflight_requests"
)

var defaultDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Outcome 把调用结果映射为 success / error
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return OutcomeError
}

// KindLabel 返回错误类型标签值，成功时为 "none"
func KindLabel(err error) string {
	if err == nil {
		return "none"
	}
	return xerrors.KindOf(err).String()
}
