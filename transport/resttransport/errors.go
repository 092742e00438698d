package resttransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// StatusKind 把 HTTP 状态码映射为统一错误类型，覆盖全部非 2xx 状态码
func StatusKind(code int) xerrors.Kind {
	switch code {
	case http.StatusBadRequest, http.StatusConflict:
		return xerrors.KindInvalidArgument
	case http.StatusUnauthorized:
		return xerrors.KindUnauthorized
	case http.StatusForbidden:
		return xerrors.KindForbidden
	case http.StatusNotFound:
		return xerrors.KindNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return xerrors.KindTimeout
	case http.StatusUnprocessableEntity:
		return xerrors.KindSchemaViolation
	case http.StatusTooManyRequests:
		return xerrors.KindRateLimited
	case 499:
		return xerrors.KindCancelled
	case http.StatusInternalServerError:
		return xerrors.KindInternal
	case http.StatusNotImplemented:
		return xerrors.KindProtocol
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return xerrors.KindUnavailable
	}
	switch {
	case code >= 400 && code < 500:
		return xerrors.KindInvalidArgument
	case code >= 500 && code < 600:
		return xerrors.KindInternal
	default:
		return xerrors.KindProtocol
	}
}

// StatusError 由非 2xx 响应构造统一错误。错误体无法解析时退回到状态码描述。
func StatusError(op transport.Operation, code int, header http.Header, body []byte) error {
	e := &xerrors.Error{
		Kind:      StatusKind(code),
		Op:        string(op),
		Message:   http.StatusText(code),
		RequestID: header.Get(transport.HeaderRequestID),
	}
	var eb transport.ErrorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		if eb.Message != "" {
			e.Message = eb.Message
		}
		if eb.RequestID != "" {
			e.RequestID = eb.RequestID
		}
	}
	if e.Message == "" {
		e.Message = "status " + strconv.Itoa(code)
	}
	if e.Kind == xerrors.KindRateLimited {
		e.RetryAfter = ParseRetryAfter(header.Get("Retry-After"), time.Now())
	}
	return e
}

// ParseRetryAfter 解析 Retry-After：秒数或 HTTP 日期，无法解析或已过期时返回 0
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
