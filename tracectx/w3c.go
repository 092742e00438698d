package tracectx

import (
	"encoding/hex"
	"strings"

	"github.com/ceyewan/authzkit/xerrors"
)

const (
	HeaderTraceparent = "traceparent"
	HeaderTracestate  = "tracestate"

	traceparentVersion = "00"
)

// ParseTraceparent 解析 W3C traceparent：version-traceid-spanid-flags
//
// 仅支持版本 00。以下情况返回错误：字段数不是 4、版本不受支持、
// 各字段长度不符、包含非小写十六进制字符、trace id 或 span id 全零。
func ParseTraceparent(s string) (TraceContext, error) {
	var tc TraceContext

	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 4 {
		return tc, xerrors.Wrapf(ErrMalformed, "traceparent: %d fields", len(parts))
	}
	version, traceID, spanID, flags := parts[0], parts[1], parts[2], parts[3]

	if len(version) != 2 || !isLowerHex(version) {
		return tc, xerrors.Wrapf(ErrMalformed, "traceparent: version %q", version)
	}
	if version != traceparentVersion {
		return tc, xerrors.Wrapf(ErrUnsupportedVersion, "%q", version)
	}
	if len(traceID) != 32 || !isLowerHex(traceID) {
		return tc, xerrors.Wrapf(ErrMalformed, "traceparent: trace id %q", traceID)
	}
	if len(spanID) != 16 || !isLowerHex(spanID) {
		return tc, xerrors.Wrapf(ErrMalformed, "traceparent: span id %q", spanID)
	}
	if len(flags) != 2 || !isLowerHex(flags) {
		return tc, xerrors.Wrapf(ErrMalformed, "traceparent: flags %q", flags)
	}

	_, _ = hex.Decode(tc.TraceID[:], []byte(traceID))
	_, _ = hex.Decode(tc.SpanID[:], []byte(spanID))
	var f [1]byte
	_, _ = hex.Decode(f[:], []byte(flags))
	tc.Flags = f[0]

	if !tc.TraceID.IsValid() || !tc.SpanID.IsValid() {
		return TraceContext{}, xerrors.Wrap(ErrZeroID, "traceparent")
	}
	return tc, nil
}

// Traceparent 序列化为 W3C traceparent
func (tc TraceContext) Traceparent() string {
	var b strings.Builder
	b.Grow(55)
	b.WriteString(traceparentVersion)
	b.WriteByte('-')
	b.WriteString(tc.TraceID.String())
	b.WriteByte('-')
	b.WriteString(tc.SpanID.String())
	b.WriteByte('-')
	b.WriteString(hex.EncodeToString([]byte{tc.Flags}))
	return b.String()
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
