package trace

const (
	// 鉴权调用语义属性键
	AttrAuthzOperation  = "authz.operation"
	AttrAuthzTransport  = "authz.transport"
	AttrAuthzSubject    = "authz.subject"
	AttrAuthzPermission = "authz.permission"
	AttrAuthzResource   = "authz.resource"
	AttrAuthzAllowed    = "authz.allowed"
	AttrAuthzRequestID  = "authz.request_id"
	AttrAuthzAttempt    = "authz.attempt"
	AttrAuthzFallback   = "authz.fallback"
	AttrErrorKind       = "error.kind"

	// AttrTelemetryLibrary Resource 上标记产生 Span 的客户端库
	AttrTelemetryLibrary = "telemetry.library"
)

const (
	// Messaging 语义属性键
	AttrMessagingSystem      = "messaging.system"
	AttrMessagingDestination = "messaging.destination"
	AttrMessagingOperation   = "messaging.operation"
)

const (
	MessagingSystemNATS       = "nats"
	MessagingOperationPublish = "publish"
)

// TracerName 本库创建 Span 时使用的 Tracer 名称
const TracerName = "github.com/ceyewan/authzkit"

// SpanNameClient 返回一次鉴权调用的 Span 名称
func SpanNameClient(operation string) string {
	if operation == "" {
		return "authz.client"
	}
	return "authz.client " + operation
}

// SpanNameAudit 返回审计事件发布的 Span 名称
func SpanNameAudit(destination string) string {
	if destination == "" {
		return "audit.publish"
	}
	return "audit.publish " + destination
}
