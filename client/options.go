package client

import (
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/authzkit/audit"
	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/dispatch"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/transport"
)

// Option 客户端选项函数
type Option func(*options)

type options struct {
	logger       clog.Logger
	meter        metrics.Meter
	tracer       oteltrace.Tracer
	grpc         transport.Transport
	rest         transport.Transport
	redis        redis.UniversalClient
	nats         *nats.Conn
	auditSink    audit.Sink
	interceptors []middleware.Interceptor
	fallbacks    []dispatch.FallbackListener
}

// WithLogger 使用已有的 Logger，此时忽略 Config.Log
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMeter 使用已有的 Meter，此时忽略 Config.Metrics
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}

// WithTracer 设置 Client Span 使用的 Tracer，默认使用全局 TracerProvider
func WithTracer(t oteltrace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithGRPCTransport 使用已有的 gRPC 传输，此时忽略 Config.GRPC。该传输由调用方关闭。
func WithGRPCTransport(t transport.Transport) Option {
	return func(o *options) {
		o.grpc = t
	}
}

// WithRESTTransport 使用已有的 REST 传输，此时忽略 Config.REST。该传输由调用方关闭。
func WithRESTTransport(t transport.Transport) Option {
	return func(o *options) {
		o.rest = t
	}
}

// WithRedisClient 为 redis 缓存驱动注入客户端
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) {
		o.redis = c
	}
}

// WithNATSConn 为 nats 审计输出注入连接
func WithNATSConn(nc *nats.Conn) Option {
	return func(o *options) {
		o.nats = nc
	}
}

// WithAuditSink 使用自定义审计输出，此时忽略 Config.Audit.Sink
func WithAuditSink(s audit.Sink) Option {
	return func(o *options) {
		o.auditSink = s
	}
}

// WithInterceptors 追加自定义拦截器，位于内置拦截器之后、调度器之前
func WithInterceptors(ics ...middleware.Interceptor) Option {
	return func(o *options) {
		o.interceptors = append(o.interceptors, ics...)
	}
}

// WithFallbackListener 注册传输降级监听器
func WithFallbackListener(l dispatch.FallbackListener) Option {
	return func(o *options) {
		if l != nil {
			o.fallbacks = append(o.fallbacks, l)
		}
	}
}
