// Package middleware 实现鉴权调用的中间件管道。
//
// 管道由一组 Interceptor 和一个终端 Handler（通常是 Dispatcher）组成，
// 构建时按右折叠组合为单个 Handler：第一个添加的拦截器位于最外层，
// 最先看到请求、最后看到响应。
//
//	p := middleware.New(middleware.Dispatcher(d),
//	    middleware.Recover(logger),
//	    middleware.RequestID(),
//	    middleware.Tracing(nil, tracectx.FormatW3C),
//	    middleware.Logging(logger),
//	)
//	resp, err := p.Do(ctx, req)
//
// 拦截器可以修改请求、直接返回（短路）或修改响应，但不能吞掉错误：
// 失败的调用总是以 error 和失败 Response 一起返回。
package middleware

import (
	"context"

	"github.com/ceyewan/authzkit/xerrors"
)

// Handler 处理一次请求
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Interceptor 包装一次请求，next 是链路的剩余部分
type Interceptor func(ctx context.Context, req *Request, next Handler) (*Response, error)

// Chain 把拦截器右折叠到 terminal 上。第一个拦截器最先执行。
func Chain(terminal Handler, interceptors ...Interceptor) Handler {
	h := terminal
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = bind(interceptors[i], h)
	}
	return h
}

func bind(ic Interceptor, next Handler) Handler {
	return func(ctx context.Context, req *Request) (*Response, error) {
		return ic(ctx, req, next)
	}
}

// Pipeline 构建完成的中间件管道，可并发使用
type Pipeline struct {
	handler Handler
	size    int
}

// New 构建管道，nil 拦截器会被忽略
func New(terminal Handler, interceptors ...Interceptor) *Pipeline {
	list := make([]Interceptor, 0, len(interceptors))
	for _, ic := range interceptors {
		if ic != nil {
			list = append(list, ic)
		}
	}
	return &Pipeline{handler: Chain(terminal, list...), size: len(list)}
}

// Len 返回拦截器数量
func (p *Pipeline) Len() int {
	return p.size
}

// Do 执行请求。保证返回非 nil 的 Response，且失败时 error 非 nil。
func (p *Pipeline) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		err := xerrors.Newf(xerrors.KindInvalidArgument, "request is nil")
		return Failure(err), err
	}
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}

	resp, err := p.handler(ctx, req)
	switch {
	case resp == nil && err == nil:
		err = xerrors.Newf(xerrors.KindInternal, "pipeline produced no response").WithOp(string(req.Operation))
		resp = Failure(err)
	case resp == nil:
		resp = Failure(err)
	case err == nil && resp.Status == StatusError:
		// 拦截器返回了失败响应却没有错误，按响应里的类型补出错误
		err = &xerrors.Error{
			Kind:      resp.ErrorKind,
			Op:        string(req.Operation),
			Message:   "call failed",
			RequestID: resp.RequestID,
		}
	case err != nil && resp.Status != StatusError:
		resp.Status = StatusError
		resp.ErrorKind = xerrors.KindOf(err)
	}
	return resp, err
}
