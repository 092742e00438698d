package tracectx

import "github.com/ceyewan/authzkit/xerrors"

var (
	// ErrNoTraceContext 载体中不存在任何可识别的链路头
	ErrNoTraceContext = xerrors.New("tracectx: no trace context in carrier")
	// ErrMalformed 链路头格式错误
	ErrMalformed = xerrors.New("tracectx: malformed header")
	// ErrUnsupportedVersion traceparent 版本不受支持
	ErrUnsupportedVersion = xerrors.New("tracectx: unsupported traceparent version")
	// ErrZeroID trace id 或 span id 全零
	ErrZeroID = xerrors.New("tracectx: all-zero trace or span id")
)
