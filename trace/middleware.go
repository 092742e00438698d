package trace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/stats"
)

// GRPCServerStatsHandler 测试后端使用的服务端 stats.Handler
func GRPCServerStatsHandler() stats.Handler {
	return otelgrpc.NewServerHandler()
}

// GRPCClientStatsHandler gRPC 传输使用的客户端 stats.Handler，
// 每个 RPC 的 Span 带上 authz.transport=grpc
func GRPCClientStatsHandler() stats.Handler {
	return otelgrpc.NewClientHandler(
		otelgrpc.WithSpanAttributes(attribute.String(AttrAuthzTransport, "grpc")),
	)
}

// HTTPTransport 为 REST 传输包装跟踪，base 为 nil 时使用 http.DefaultTransport。
// Span 名称为 "authz.rest <METHOD> <path>"，路径固定，不会产生高基数名称。
func HTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "authz.rest " + r.Method + " " + r.URL.Path
		}),
	)
}

// GinMiddleware 测试后端 REST 服务使用的跟踪中间件，从请求头提取上游 trace 上下文
func GinMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}
