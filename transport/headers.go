package transport

import (
	"context"
	"maps"
	"runtime"
	"strings"
	"sync"
)

// Version 客户端版本，发布时通过 -ldflags 覆盖
var Version = "0.1.0"

const (
	HeaderUserAgent = "User-Agent"
	HeaderRequestID = "X-Request-Id"
)

var (
	userAgentOnce sync.Once
	userAgent     string
)

// UserAgent 返回 "authzkit/<version> (<go version>; <os>/<arch>)"，进程内只计算一次
func UserAgent() string {
	userAgentOnce.Do(func() {
		userAgent = "authzkit/" + Version + " (" + runtime.Version() + "; " + runtime.GOOS + "/" + runtime.GOARCH + ")"
	})
	return userAgent
}

type outboundKey struct{}

// WithOutboundHeaders 把出站请求头放入 context，与已有的请求头合并，同名时后者覆盖。
// 中间件写入的 trace、request id、认证头都经由这里到达传输层。
func WithOutboundHeaders(ctx context.Context, headers map[string]string) context.Context {
	if len(headers) == 0 {
		return ctx
	}
	merged := make(map[string]string, len(headers))
	if prev, ok := ctx.Value(outboundKey{}).(map[string]string); ok {
		maps.Copy(merged, prev)
	}
	for k, v := range headers {
		merged[strings.ToLower(k)] = v
	}
	return context.WithValue(ctx, outboundKey{}, merged)
}

// OutboundHeaders 返回 context 中的出站请求头，键为小写
func OutboundHeaders(ctx context.Context) map[string]string {
	h, _ := ctx.Value(outboundKey{}).(map[string]string)
	return h
}
