// Package tracectx 实现分布式链路上下文的编解码。
//
// 支持两种互通格式：
//   - W3C Trace Context：traceparent（+ 可选 tracestate）
//   - B3：单头 b3，或 x-b3-traceid / x-b3-spanid / x-b3-sampled / x-b3-parentspanid 四个头
//
// 任一格式解析都会拒绝全零的 trace id 和 span id。经任一格式往返后，
// trace id、span id 和采样标志保持不变。
package tracectx

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
)

// FlagSampled 采样标志位
const FlagSampled byte = 0x01

// TraceID 16 字节 trace id
type TraceID [16]byte

// SpanID 8 字节 span id
type SpanID [8]byte

var (
	zeroTraceID TraceID
	zeroSpanID  SpanID
)

func (t TraceID) IsValid() bool  { return !bytes.Equal(t[:], zeroTraceID[:]) }
func (t TraceID) String() string { return hex.EncodeToString(t[:]) }
func (s SpanID) IsValid() bool   { return !bytes.Equal(s[:], zeroSpanID[:]) }
func (s SpanID) String() string  { return hex.EncodeToString(s[:]) }

// TraceContext 链路上下文
//
// ParentSpanID 为零值表示没有父 span。TraceState 是厂商自定义状态，原样透传。
type TraceContext struct {
	TraceID      TraceID
	SpanID       SpanID
	ParentSpanID SpanID
	Flags        byte
	TraceState   string
}

// NewRoot 创建一个新的根上下文
func NewRoot(sampled bool) TraceContext {
	tc := TraceContext{
		TraceID: newTraceID(),
		SpanID:  newSpanID(),
	}
	if sampled {
		tc.Flags |= FlagSampled
	}
	return tc
}

// Child 派生子上下文：共享 trace id，生成新的 span id，并记录父 span id
func (tc TraceContext) Child() TraceContext {
	return TraceContext{
		TraceID:      tc.TraceID,
		SpanID:       newSpanID(),
		ParentSpanID: tc.SpanID,
		Flags:        tc.Flags,
		TraceState:   tc.TraceState,
	}
}

func (tc TraceContext) IsSampled() bool { return tc.Flags&FlagSampled != 0 }
func (tc TraceContext) HasParent() bool { return tc.ParentSpanID.IsValid() }
func (tc TraceContext) IsValid() bool   { return tc.TraceID.IsValid() && tc.SpanID.IsValid() }

func newTraceID() TraceID {
	var id TraceID
	for !id.IsValid() {
		_, _ = rand.Read(id[:])
	}
	return id
}

func newSpanID() SpanID {
	var id SpanID
	for !id.IsValid() {
		_, _ = rand.Read(id[:])
	}
	return id
}

type traceKey struct{}

type requestIDKey struct{}

// NewContext 将链路上下文存入 context
func NewContext(ctx context.Context, tc TraceContext) context.Context {
	return context.WithValue(ctx, traceKey{}, tc)
}

// FromContext 从 context 中取出链路上下文
func FromContext(ctx context.Context) (TraceContext, bool) {
	tc, ok := ctx.Value(traceKey{}).(TraceContext)
	return tc, ok && tc.IsValid()
}

// WithRequestID 将请求 ID 存入 context，供日志和出站请求头使用
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext 从 context 中取出请求 ID，不存在时返回空串
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
