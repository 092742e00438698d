package xerrors

import (
	"errors"
	"fmt"
)

// AccessDeniedError 表示一次成功的鉴权评估结果为"不允许"。
//
// 它只由 Require 风格的包装产生，与 KindForbidden 无关：
// Forbidden 指调用方自身缺少 API 权限，而 AccessDeniedError 指被检查的主体缺少权限。
type AccessDeniedError struct {
	Subject    string
	Permission string
	Resource   string
	Reason     string
	RequestID  string
}

func (e *AccessDeniedError) Error() string {
	msg := fmt.Sprintf("access denied: %s lacks %s on %s", e.Subject, e.Permission, e.Resource)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.RequestID != "" {
		msg += " [request_id=" + e.RequestID + "]"
	}
	return msg
}

// IsAccessDenied 报告错误链中是否存在 *AccessDeniedError
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
