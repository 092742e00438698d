package ratelimit

import (
	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
)

// Option 限流组件选项函数
type Option func(*options)

type options struct {
	logger  clog.Logger
	metrics *metrics.ClientMetrics
}

// WithLogger 设置 Logger，内部会自动添加 namespace: "ratelimit"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("ratelimit")
		}
	}
}

// WithMetrics 设置指标收集器，记录被限流的调用
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
