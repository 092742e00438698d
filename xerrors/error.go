package xerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// 哨兵错误
var (
	ErrShuttingDown = errors.New("authzkit: client is shutting down")
	ErrInvalidKind  = errors.New("authzkit: invalid error kind")
)

// Error 统一错误。
// 传输层原生错误在边界处翻译为 Error，之后的重试、降级和熔断只看 Kind。
type Error struct {
	Kind       Kind
	Op         string        // 逻辑操作名，例如 "check"
	Message    string        // 服务端或本地给出的描述
	RetryAfter time.Duration // 仅 RateLimited 有意义，0 表示服务端未给出
	RequestID  string        // 服务端返回的请求 ID
	Cause      error
}

// Newf 创建指定类型的错误
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// E 用指定类型包装底层错误
func E(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil && e.Cause.Error() != e.Message {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.RequestID != "" {
		b.WriteString(" (request_id=")
		b.WriteString(e.RequestID)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 让 errors.Is(err, &Error{Kind: k}) 按 Kind 匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Cause == nil
}

// WithOp 返回设置了操作名的副本
func (e *Error) WithOp(op string) *Error {
	cp := *e
	cp.Op = op
	return &cp
}

// KindOf 提取错误链中的统一错误类型。
// 非 *Error 的错误按上下文错误识别，其余一律视为 Unknown。
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrShuttingDown):
		return KindUnavailable
	}
	return KindUnknown
}

// RetryAfterOf 返回 RateLimited 错误携带的服务端建议延迟
func RetryAfterOf(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRateLimited && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

// RequestIDOf 返回错误携带的服务端请求 ID
func RequestIDOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.RequestID
	}
	return ""
}

// IsRetriable 报告错误是否属于默认可重试类型
func IsRetriable(err error) bool {
	if err == nil || errors.Is(err, ErrShuttingDown) {
		return false
	}
	return KindOf(err).IsRetriable()
}

// FromContext 把 context 错误翻译为统一错误：超时为 Timeout，取消为 Cancelled。
// 非 context 错误原样返回。
func FromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: "deadline exceeded", Cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCancelled, Message: "canceled", Cause: err}
	default:
		return err
	}
}

// ShuttingDown 返回关闭期间拒绝新调用的错误，类型为 Unavailable 且不会被重试
func ShuttingDown(op string) *Error {
	return &Error{Kind: KindUnavailable, Op: op, Message: "rejected", Cause: ErrShuttingDown}
}
