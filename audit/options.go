package audit

import (
	"github.com/nats-io/nats.go"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/authzkit/clog"
)

// Option 审计组件选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
	tracer oteltrace.Tracer
	conn   *nats.Conn
	sink   Sink
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "audit"。
// log 输出也写入这个 Logger。
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("audit")
		}
	}
}

// WithTracer 设置发布消息时使用的 Tracer，默认使用全局 TracerProvider
func WithTracer(t oteltrace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithNATSConn 注入已有的 NATS 连接（nats 输出），Close 不会关闭该连接
func WithNATSConn(nc *nats.Conn) Option {
	return func(o *options) {
		o.conn = nc
	}
}

// WithSink 直接指定输出，忽略 Config.Sink
func WithSink(s Sink) Option {
	return func(o *options) {
		o.sink = s
	}
}
