package xerrors

import "strings"

// Kind 统一错误类型
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindInvalidArgument
	KindSchemaViolation
	KindRateLimited
	KindUnavailable
	KindTimeout
	KindInternal
	KindCancelled
	KindCircuitOpen
	KindConnection
	KindProtocol
	KindConfiguration
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindUnauthorized:    "unauthorized",
	KindForbidden:       "forbidden",
	KindNotFound:        "not_found",
	KindInvalidArgument: "invalid_argument",
	KindSchemaViolation: "schema_violation",
	KindRateLimited:     "rate_limited",
	KindUnavailable:     "unavailable",
	KindTimeout:         "timeout",
	KindInternal:        "internal",
	KindCancelled:       "cancelled",
	KindCircuitOpen:     "circuit_open",
	KindConnection:      "connection",
	KindProtocol:        "protocol",
	KindConfiguration:   "configuration",
}

// AllKinds 返回全部错误类型，顺序固定。
func AllKinds() []Kind {
	return []Kind{
		KindUnauthorized, KindForbidden, KindNotFound, KindInvalidArgument,
		KindSchemaViolation, KindRateLimited, KindUnavailable, KindTimeout,
		KindInternal, KindCancelled, KindCircuitOpen, KindConnection,
		KindProtocol, KindConfiguration, KindUnknown,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind 解析配置中的错误类型名称，大小写和连字符不敏感。
func ParseKind(s string) (Kind, bool) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch norm {
	case "ratelimited":
		norm = "rate_limited"
	case "circuitopen":
		norm = "circuit_open"
	case "notfound":
		norm = "not_found"
	case "invalidargument":
		norm = "invalid_argument"
	case "schemaviolation":
		norm = "schema_violation"
	}
	for k, name := range kindNames {
		if name == norm {
			return k, true
		}
	}
	return KindUnknown, false
}

// MarshalText 实现 encoding.TextMarshaler，便于在 JSON 和 msgpack 中按名称传输。
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, ok := ParseKind(string(b))
	if !ok {
		return Wrapf(ErrInvalidKind, "%q", string(b))
	}
	*k = parsed
	return nil
}

// IsRetriable 报告该类型是否默认可重试。
// 默认可重试：Unavailable、Timeout、RateLimited、CircuitOpen、Connection。
func (k Kind) IsRetriable() bool {
	switch k {
	case KindUnavailable, KindTimeout, KindRateLimited, KindCircuitOpen, KindConnection:
		return true
	default:
		return false
	}
}
