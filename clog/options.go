package clog

import "io"

// ContextField 定义从 Context 中提取字段的规则
type ContextField struct {
	Key       any    // Context 中存储的键
	FieldName string // 日志中的字段名
}

// Option 函数式选项，用于配置 Logger 实例
type Option func(*options)

type options struct {
	namespaceParts        []string
	contextFields         []ContextField
	writer                io.Writer
	enableTraceExtraction bool
}

// WithNamespace 设置日志命名空间，多级命名空间以 "." 连接
func WithNamespace(parts ...string) Option {
	return func(o *options) {
		o.namespaceParts = append(o.namespaceParts, parts...)
	}
}

// WithWriter 将日志写入 w，忽略 Config.Output。
// 命令行工具用它把日志接到 cobra 的错误输出上。
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.writer = w
	}
}

// WithContextField 添加自定义的 Context 字段提取规则
//
//	clog.WithContextField(tenantKey{}, "tenant")
func WithContextField(key any, fieldName string) Option {
	return func(o *options) {
		o.contextFields = append(o.contextFields, ContextField{
			Key:       key,
			FieldName: fieldName,
		})
	}
}

// WithTraceContext 开启链路信息自动提取
//
// 优先使用 OpenTelemetry 的 SpanContext，其次使用 tracectx 中携带的
// W3C/B3 上下文；同时提取中间件写入的请求 ID。
func WithTraceContext() Option {
	return func(o *options) {
		o.enableTraceExtraction = true
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
