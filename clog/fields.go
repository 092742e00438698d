package clog

import (
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/ceyewan/authzkit/xerrors"
)

// Field 是 slog.Attr 的类型别名
type Field = slog.Attr

func String(k, v string) Field                 { return slog.String(k, v) }
func Int(k string, v int) Field                { return slog.Int(k, v) }
func Int64(k string, v int64) Field            { return slog.Int64(k, v) }
func Uint64(k string, v uint64) Field          { return slog.Uint64(k, v) }
func Float64(k string, v float64) Field        { return slog.Float64(k, v) }
func Bool(k string, v bool) Field              { return slog.Bool(k, v) }
func Time(k string, v time.Time) Field         { return slog.Time(k, v) }
func Duration(k string, v time.Duration) Field { return slog.Duration(k, v) }
func Any(k string, v any) Field                { return slog.Any(k, v) }

// Error 轻量级错误字段，只输出错误消息：err_msg="..."
func Error(err error) Field {
	if err == nil {
		return slog.String("", "")
	}
	return slog.String("err_msg", err.Error())
}

// ErrorWithKind 输出错误消息和统一错误类型：error={msg="...", kind="timeout"}
//
// 非 *xerrors.Error 的错误 kind 为 unknown。
func ErrorWithKind(err error) Field {
	if err == nil {
		return slog.String("", "")
	}
	attrs := []any{
		slog.String("msg", err.Error()),
		slog.String("kind", xerrors.KindOf(err).String()),
	}
	if id := xerrors.RequestIDOf(err); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	return slog.Group("error", attrs...)
}

// ErrorWithStack 包含错误消息和堆栈信息的字段，生产环境谨慎使用
func ErrorWithStack(err error) Field {
	if err == nil {
		return slog.String("", "")
	}
	stack := getStackTrace(3)
	if stack == "" {
		return slog.Group("error",
			slog.String("msg", err.Error()),
			slog.String("type", fmt.Sprintf("%T", err)),
		)
	}
	return slog.Group("error",
		slog.String("msg", err.Error()),
		slog.String("type", fmt.Sprintf("%T", err)),
		slog.String("stack", stack),
	)
}

func getStackTrace(skip int) string {
	var pcs [32]uintptr
	n := runtime.Callers(skip, pcs[:])
	if n == 0 {
		return ""
	}

	var builder strings.Builder
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&builder, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		if !more {
			break
		}
	}
	return builder.String()
}
