package metrics

import (
	"github.com/ceyewan/authzkit/clog"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Option 配置 Meter 实例的选项
type Option func(*options)

type options struct {
	logger clog.Logger
	reader sdkmetric.Reader
}

// WithLogger 注入日志记录器，内部会追加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithReader 使用自定义 Reader 替代 Prometheus exporter，
// 常用于测试中配合 sdkmetric.NewManualReader 读取指标。
func WithReader(reader sdkmetric.Reader) Option {
	return func(o *options) {
		o.reader = reader
	}
}
