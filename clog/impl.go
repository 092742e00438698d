package clog

import (
	"context"
	"log/slog"
	"runtime"
	"time"
)

// loggerImpl 是 Logger 接口的实现，派生的子 Logger 共享同一个 handler
type loggerImpl struct {
	handler   *clogHandler
	options   *options
	baseAttrs []slog.Attr
}

func newLogger(config *Config, o *options) (Logger, error) {
	handler, err := newHandler(config, o)
	if err != nil {
		return nil, err
	}
	return &loggerImpl{handler: handler, options: o}, nil
}

func (l *loggerImpl) Debug(msg string, fields ...Field) {
	l.log(context.Background(), DebugLevel, msg, fields...)
}

func (l *loggerImpl) Info(msg string, fields ...Field) {
	l.log(context.Background(), InfoLevel, msg, fields...)
}

func (l *loggerImpl) Warn(msg string, fields ...Field) {
	l.log(context.Background(), WarnLevel, msg, fields...)
}

func (l *loggerImpl) Error(msg string, fields ...Field) {
	l.log(context.Background(), ErrorLevel, msg, fields...)
}

func (l *loggerImpl) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, DebugLevel, msg, fields...)
}

func (l *loggerImpl) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, InfoLevel, msg, fields...)
}

func (l *loggerImpl) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, WarnLevel, msg, fields...)
}

func (l *loggerImpl) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, ErrorLevel, msg, fields...)
}

func (l *loggerImpl) Enabled(level Level) bool {
	return l.handler.Enabled(context.Background(), level.slogLevel())
}

func (l *loggerImpl) WithNamespace(parts ...string) Logger {
	newOptions := *l.options
	newOptions.namespaceParts = append(append([]string{}, l.options.namespaceParts...), parts...)

	return &loggerImpl{
		handler:   l.handler,
		options:   &newOptions,
		baseAttrs: l.baseAttrs,
	}
}

func (l *loggerImpl) With(fields ...Field) Logger {
	// 复制切片，避免兄弟 Logger 之间共享底层数组
	attrs := make([]slog.Attr, 0, len(l.baseAttrs)+len(fields))
	attrs = append(attrs, l.baseAttrs...)
	attrs = append(attrs, fields...)

	return &loggerImpl{
		handler:   l.handler,
		options:   l.options,
		baseAttrs: attrs,
	}
}

func (l *loggerImpl) log(ctx context.Context, level Level, msg string, fields ...Field) {
	slogLevel := level.slogLevel()
	if !l.handler.Enabled(ctx, slogLevel) {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	attrs := make([]slog.Attr, 0, len(l.baseAttrs)+len(fields)+4)
	attrs = append(attrs, l.baseAttrs...)
	for _, f := range fields {
		if f.Key != "" {
			attrs = append(attrs, f)
		}
	}
	extractContextFields(ctx, l.options, &attrs)
	addNamespaceField(l.options, &attrs)

	// skip: runtime.Callers, log, Debug/Info/...
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	record := slog.NewRecord(time.Now(), slogLevel, msg, pcs[0])
	record.AddAttrs(attrs...)

	_ = l.handler.Handle(ctx, record)
}

func (l *loggerImpl) SetLevel(level Level) error {
	return l.handler.SetLevel(level)
}

func (l *loggerImpl) Flush() {
	l.handler.Flush()
}
