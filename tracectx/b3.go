package tracectx

import (
	"encoding/hex"
	"strings"

	"github.com/ceyewan/authzkit/xerrors"
)

const (
	HeaderB3             = "b3"
	HeaderB3TraceID      = "x-b3-traceid"
	HeaderB3SpanID       = "x-b3-spanid"
	HeaderB3Sampled      = "x-b3-sampled"
	HeaderB3ParentSpanID = "x-b3-parentspanid"
	HeaderB3Flags        = "x-b3-flags"
)

// ParseB3 解析 B3 单头：traceid-spanid[-sampled[-parentspanid]]
//
// 单字符取值 "0" / "1" / "d" 表示只携带采样决定，此时创建新的根上下文
// （"d" 即 debug，视为采样）。64 位 trace id 会在左侧补零到 128 位。
func ParseB3(s string) (TraceContext, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "0":
		return NewRoot(false), nil
	case "1", "d":
		return NewRoot(true), nil
	case "":
		return TraceContext{}, xerrors.Wrap(ErrMalformed, "b3: empty")
	}

	parts := strings.Split(s, "-")
	if len(parts) < 2 || len(parts) > 4 {
		return TraceContext{}, xerrors.Wrapf(ErrMalformed, "b3: %d fields", len(parts))
	}

	sampled := ""
	parent := ""
	if len(parts) >= 3 {
		sampled = parts[2]
	}
	if len(parts) == 4 {
		parent = parts[3]
	}
	return buildB3(parts[0], parts[1], sampled, parent)
}

// B3 序列化为 B3 单头，采样位固定输出 0 或 1
func (tc TraceContext) B3() string {
	var b strings.Builder
	b.WriteString(tc.TraceID.String())
	b.WriteByte('-')
	b.WriteString(tc.SpanID.String())
	b.WriteByte('-')
	b.WriteString(b3Sampled(tc))
	if tc.HasParent() {
		b.WriteByte('-')
		b.WriteString(tc.ParentSpanID.String())
	}
	return b.String()
}

// ParseB3Multi 从四个独立的 B3 头解析上下文，get 按头名返回取值
//
// 只存在 x-b3-sampled（或 x-b3-flags）而没有 id 时，按采样决定创建新的根上下文。
func ParseB3Multi(get func(key string) string) (TraceContext, error) {
	traceID := get(HeaderB3TraceID)
	spanID := get(HeaderB3SpanID)
	sampled := get(HeaderB3Sampled)
	if get(HeaderB3Flags) == "1" {
		sampled = "d"
	}

	if traceID == "" && spanID == "" {
		switch normalizeSampled(sampled) {
		case "1", "d":
			return NewRoot(true), nil
		case "0":
			return NewRoot(false), nil
		case "":
			return TraceContext{}, ErrNoTraceContext
		default:
			return TraceContext{}, xerrors.Wrapf(ErrMalformed, "x-b3-sampled %q", sampled)
		}
	}
	if traceID == "" || spanID == "" {
		return TraceContext{}, xerrors.Wrap(ErrMalformed, "b3: trace id and span id must both be present")
	}
	return buildB3(traceID, spanID, sampled, get(HeaderB3ParentSpanID))
}

// B3Headers 序列化为四个独立的 B3 头，set 按头名写入
func (tc TraceContext) B3Headers(set func(key, value string)) {
	set(HeaderB3TraceID, tc.TraceID.String())
	set(HeaderB3SpanID, tc.SpanID.String())
	set(HeaderB3Sampled, b3Sampled(tc))
	if tc.HasParent() {
		set(HeaderB3ParentSpanID, tc.ParentSpanID.String())
	}
}

func buildB3(traceID, spanID, sampled, parent string) (TraceContext, error) {
	var tc TraceContext

	traceID = strings.ToLower(traceID)
	switch len(traceID) {
	case 16:
		traceID = strings.Repeat("0", 16) + traceID
	case 32:
	default:
		return tc, xerrors.Wrapf(ErrMalformed, "b3: trace id %q", traceID)
	}
	if !isLowerHex(traceID) {
		return tc, xerrors.Wrapf(ErrMalformed, "b3: trace id %q", traceID)
	}
	if err := decodeSpanID(&tc.SpanID, spanID); err != nil {
		return TraceContext{}, err
	}
	_, _ = hex.Decode(tc.TraceID[:], []byte(traceID))

	switch normalizeSampled(sampled) {
	case "1", "d":
		tc.Flags |= FlagSampled
	case "0", "":
	default:
		return TraceContext{}, xerrors.Wrapf(ErrMalformed, "b3: sampled %q", sampled)
	}

	if parent != "" {
		if err := decodeSpanID(&tc.ParentSpanID, parent); err != nil {
			return TraceContext{}, err
		}
		if !tc.ParentSpanID.IsValid() {
			return TraceContext{}, xerrors.Wrap(ErrZeroID, "b3: parent span id")
		}
	}

	if !tc.TraceID.IsValid() || !tc.SpanID.IsValid() {
		return TraceContext{}, xerrors.Wrap(ErrZeroID, "b3")
	}
	return tc, nil
}

func decodeSpanID(dst *SpanID, s string) error {
	s = strings.ToLower(s)
	if len(s) != 16 || !isLowerHex(s) {
		return xerrors.Wrapf(ErrMalformed, "b3: span id %q", s)
	}
	_, _ = hex.Decode(dst[:], []byte(s))
	return nil
}

// normalizeSampled 兼容部分实现使用的 true/false 取值
func normalizeSampled(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return "1"
	case "false":
		return "0"
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}

func b3Sampled(tc TraceContext) string {
	if tc.IsSampled() {
		return "1"
	}
	return "0"
}
