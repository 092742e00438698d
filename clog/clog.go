// Package clog 为 authzkit 提供基于 slog 的结构化日志组件。
// 支持 Context 字段提取（request_id、trace_id）和命名空间管理。
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("dispatch started", clog.String("operation", "check"))
//
// 组件内部统一通过 WithNamespace 派生子 Logger：
//
//	logger = logger.WithNamespace("dispatch")
//
// 开启 WithTraceContext 后，InfoContext 等方法会自动从 Context 中提取
// OpenTelemetry span 或 tracectx 中的 trace_id / span_id，以及请求 ID。
package clog

import "fmt"

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}
