package clog

import "context"

// Logger 日志接口
//
// 带 Context 的版本会按 Option 配置自动提取 trace_id、request_id 等字段。
// 作为客户端库的日志组件，Logger 不提供 Fatal：任何错误都返回给调用方，
// 是否退出进程由应用决定。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)

	// Enabled 报告该级别是否会输出，用于跳过热路径上的字段构造
	Enabled(level Level) bool

	// With 创建一个带有预设字段的子 Logger
	With(fields ...Field) Logger

	// WithNamespace 追加命名空间，例如 "authzkit" + "dispatch" 得到 "authzkit.dispatch"
	WithNamespace(parts ...string) Logger

	// SetLevel 动态调整日志级别，对所有派生的子 Logger 生效
	SetLevel(level Level) error

	// Flush 强制同步缓冲区
	Flush()
}
