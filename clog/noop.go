package clog

import "context"

type noopLogger struct{}

// Discard 创建一个静默的 Logger 实例，所有方法都是空操作。
// 组件未注入 Logger 时默认使用它。
func Discard() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(msg string, fields ...Field)                             {}
func (l *noopLogger) Info(msg string, fields ...Field)                              {}
func (l *noopLogger) Warn(msg string, fields ...Field)                              {}
func (l *noopLogger) Error(msg string, fields ...Field)                             {}
func (l *noopLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {}
func (l *noopLogger) InfoContext(ctx context.Context, msg string, fields ...Field)  {}
func (l *noopLogger) WarnContext(ctx context.Context, msg string, fields ...Field)  {}
func (l *noopLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {}
func (l *noopLogger) Enabled(level Level) bool                                      { return false }
func (l *noopLogger) With(fields ...Field) Logger                                   { return l }
func (l *noopLogger) WithNamespace(parts ...string) Logger                          { return l }
func (l *noopLogger) SetLevel(level Level) error                                    { return nil }
func (l *noopLogger) Flush()                                                        {}
