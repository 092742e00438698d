package tracectx

import (
	"strings"

	"github.com/ceyewan/authzkit/xerrors"
	"go.opentelemetry.io/otel/propagation"
)

// Format 链路头格式
type Format int

const (
	FormatW3C Format = iota
	FormatB3Single
	FormatB3Multi
)

func (f Format) String() string {
	switch f {
	case FormatW3C:
		return "w3c"
	case FormatB3Single:
		return "b3"
	case FormatB3Multi:
		return "b3multi"
	default:
		return "unknown"
	}
}

// ParseFormat 解析配置中的格式名称：w3c、b3、b3multi
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w3c", "tracecontext", "traceparent":
		return FormatW3C, nil
	case "b3", "b3single":
		return FormatB3Single, nil
	case "b3multi", "b3-multi":
		return FormatB3Multi, nil
	default:
		return 0, xerrors.Newf(xerrors.KindConfiguration, "unknown trace format %q", s)
	}
}

// DefaultFormats 默认按 W3C、B3 单头、B3 多头的顺序提取
var DefaultFormats = []Format{FormatW3C, FormatB3Single, FormatB3Multi}

// Extract 按给定格式顺序从载体中提取链路上下文，formats 为空时使用 DefaultFormats。
//
// 返回第一个成功解析的结果；如果所有格式都缺失返回 ErrNoTraceContext，
// 如果存在但格式错误则返回第一个解析错误。
func Extract(carrier propagation.TextMapCarrier, formats ...Format) (TraceContext, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	var firstErr error
	for _, f := range formats {
		tc, err := extractOne(carrier, f)
		if err == nil {
			return tc, nil
		}
		if firstErr == nil && !xerrors.Is(err, ErrNoTraceContext) {
			firstErr = err
		}
	}
	if firstErr != nil {
		return TraceContext{}, firstErr
	}
	return TraceContext{}, ErrNoTraceContext
}

func extractOne(carrier propagation.TextMapCarrier, f Format) (TraceContext, error) {
	switch f {
	case FormatW3C:
		h := carrier.Get(HeaderTraceparent)
		if h == "" {
			return TraceContext{}, ErrNoTraceContext
		}
		tc, err := ParseTraceparent(h)
		if err != nil {
			return TraceContext{}, err
		}
		tc.TraceState = carrier.Get(HeaderTracestate)
		return tc, nil
	case FormatB3Single:
		h := carrier.Get(HeaderB3)
		if h == "" {
			return TraceContext{}, ErrNoTraceContext
		}
		return ParseB3(h)
	case FormatB3Multi:
		return ParseB3Multi(carrier.Get)
	default:
		return TraceContext{}, ErrNoTraceContext
	}
}

// Inject 按给定格式把链路上下文写入载体，formats 为空时只写 W3C。
// 无效的上下文不会写入任何头。
func Inject(carrier propagation.TextMapCarrier, tc TraceContext, formats ...Format) {
	if !tc.IsValid() {
		return
	}
	if len(formats) == 0 {
		formats = []Format{FormatW3C}
	}
	for _, f := range formats {
		switch f {
		case FormatW3C:
			carrier.Set(HeaderTraceparent, tc.Traceparent())
			if tc.TraceState != "" {
				carrier.Set(HeaderTracestate, tc.TraceState)
			}
		case FormatB3Single:
			carrier.Set(HeaderB3, tc.B3())
		case FormatB3Multi:
			tc.B3Headers(carrier.Set)
		}
	}
}

// Fields 返回给定格式会写入的全部头名
func Fields(formats ...Format) []string {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	var fields []string
	for _, f := range formats {
		switch f {
		case FormatW3C:
			fields = append(fields, HeaderTraceparent, HeaderTracestate)
		case FormatB3Single:
			fields = append(fields, HeaderB3)
		case FormatB3Multi:
			fields = append(fields, HeaderB3TraceID, HeaderB3SpanID, HeaderB3Sampled, HeaderB3ParentSpanID)
		}
	}
	return fields
}
