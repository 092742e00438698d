// Package xerrors 提供 authzkit 的统一错误模型。
//
// 所有传输层原生错误（gRPC status、HTTP 状态码、网络错误）都在传输边界被翻译为
// 带 Kind 的 *Error，调度器只依据 Kind 决定重试和降级。鉴权拒绝不是错误，
// 只有 Require 包装会把拒绝转换为 *AccessDeniedError。
package xerrors

import (
	"errors"
	"fmt"
	"strings"
)

// Wrap 在错误前加上上下文，保留错误链，因此 Kind、RetryAfter 和请求 ID 仍可取出
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// WithKind 为外部错误打上 Kind。错误链中已有 *Error 时原样返回，不覆盖传输层的分类。
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Message: err.Error(), Cause: err}
}

// MultiError 关闭流程中收集的多个错误，errors.Is / errors.As 会逐个匹配
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 合并非 nil 的错误：全为 nil 返回 nil，只有一个时原样返回
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}

var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)
