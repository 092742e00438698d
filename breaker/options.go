package breaker

import (
	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

type options struct {
	logger    clog.Logger
	metrics   *metrics.ClientMetrics
	listeners []Listener
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "breaker"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMetrics 设置指标收集器，记录状态迁移和拒绝次数
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithListener 注册状态迁移监听器，可多次调用
func WithListener(l Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}
