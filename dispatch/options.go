package dispatch

import (
	"github.com/ceyewan/authzkit/breaker"
	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/retry"
	"github.com/ceyewan/authzkit/transport"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	grpc      transport.Transport
	rest      transport.Transport
	breaker   *breaker.Breaker
	retry     *retry.Policy
	logger    clog.Logger
	metrics   *metrics.ClientMetrics
	listeners []FallbackListener

	keepTransports bool
}

// WithGRPC 设置 gRPC 传输
func WithGRPC(t transport.Transport) Option {
	return func(o *options) {
		o.grpc = t
	}
}

// WithREST 设置 REST 传输
func WithREST(t transport.Transport) Option {
	return func(o *options) {
		o.rest = t
	}
}

// WithoutTransportClose Shutdown 时不关闭传输，由调用方管理传输的生命周期
func WithoutTransportClose() Option {
	return func(o *options) {
		o.keepTransports = true
	}
}

// WithBreaker 设置熔断器，未设置时不做熔断保护
func WithBreaker(b *breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}

// WithRetry 设置重试策略，未设置时不重试
func WithRetry(p *retry.Policy) Option {
	return func(o *options) {
		o.retry = p
	}
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "dispatch"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("dispatch")
		}
	}
}

// WithMetrics 设置指标收集器，记录重试和降级
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithFallbackListener 注册降级事件监听器，可多次调用
func WithFallbackListener(l FallbackListener) Option {
	return func(o *options) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}
