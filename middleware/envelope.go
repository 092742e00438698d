package middleware

import (
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ceyewan/authzkit/tracectx"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// 管道写入响应头的键
const (
	HeaderTransport = "x-authz-transport"
	HeaderFallback  = "x-authz-fallback"
	HeaderAttempts  = "x-authz-attempts"
	HeaderCache     = "x-authz-cache"
)

// Request 一次逻辑调用。Payload 对核心不透明，由 Encode 编码。
// 在中间件之间传递时可以修改，交给调度器之后不再改变。
type Request struct {
	Operation transport.Operation
	Payload   []byte
	// Headers 出站头，键为小写
	Headers   map[string]string
	Trace     *tracectx.TraceContext
	RequestID string
}

// SetHeader 设置出站头，键统一为小写
func (r *Request) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(key)] = value
}

// Header 读取出站头
func (r *Request) Header(key string) string {
	return r.Headers[strings.ToLower(key)]
}

// Status 响应状态
type Status int

const (
	StatusOK Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	return "error"
}

// Response 一次逻辑调用的结果。Status 为 StatusError 时 ErrorKind 有意义。
type Response struct {
	Status    Status
	ErrorKind xerrors.Kind
	Headers   map[string]string
	Body      []byte
	RequestID string
}

// OK 构造成功响应
func OK(body []byte) *Response {
	return &Response{Status: StatusOK, Body: body, Headers: map[string]string{}}
}

// Failure 由错误构造失败响应
func Failure(err error) *Response {
	return &Response{
		Status:    StatusError,
		ErrorKind: xerrors.KindOf(err),
		Headers:   map[string]string{},
		RequestID: xerrors.RequestIDOf(err),
	}
}

// SetHeader 设置响应头，键统一为小写
func (r *Response) SetHeader(key, value string) {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[strings.ToLower(key)] = value
}

// Header 读取响应头
func (r *Response) Header(key string) string {
	return r.Headers[strings.ToLower(key)]
}

// Encode 编码请求或响应负载
func Encode(v any) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, xerrors.E(xerrors.KindInvalidArgument, err, "encode payload")
	}
	return b, nil
}

// Decode 解码负载
func Decode(b []byte, v any) error {
	if err := msgpack.Unmarshal(b, v); err != nil {
		return xerrors.E(xerrors.KindProtocol, err, "decode payload")
	}
	return nil
}

// NewRequest 编码 payload 并构造请求
func NewRequest(op transport.Operation, payload any) (*Request, error) {
	req := &Request{Operation: op, Headers: map[string]string{}}
	if payload == nil {
		return req, nil
	}
	b, err := Encode(payload)
	if err != nil {
		return nil, xerrors.Wrapf(err, "%s", op)
	}
	req.Payload = b
	return req, nil
}
