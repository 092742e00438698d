package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/tracectx"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// Headers 注入固定的出站头，请求中已存在的键不会被覆盖
func Headers(static map[string]string) Interceptor {
	fixed := make(map[string]string, len(static))
	for k, v := range static {
		fixed[strings.ToLower(k)] = v
	}
	return func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		for k, v := range fixed {
			if _, ok := req.Headers[k]; !ok {
				req.SetHeader(k, v)
			}
		}
		return next(ctx, req)
	}
}

// RequestID 为没有请求 ID 的调用生成 UUIDv7，写入出站头并放入 ctx 供日志使用
func RequestID() Interceptor {
	return func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		if req.RequestID == "" {
			req.RequestID = req.Header(transport.HeaderRequestID)
		}
		if req.RequestID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				id = uuid.New()
			}
			req.RequestID = id.String()
		}
		req.SetHeader(transport.HeaderRequestID, req.RequestID)
		return next(tracectx.WithRequestID(ctx, req.RequestID), req)
	}
}

// Tracing 为调用建立子链路上下文并按 formats 注入出站头，同时启动 otel Client Span。
//
// 父上下文依次取自 req.Trace、ctx 中的 tracectx 和 ctx 中的 otel Span；
// 都没有时生成新的采样根上下文。tracer 为 nil 时使用全局 TracerProvider。
func Tracing(tracer oteltrace.Tracer, formats ...tracectx.Format) Interceptor {
	formats = append([]tracectx.Format(nil), formats...)
	return func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		parent, hasParent := tracectx.FromContext(ctx)
		if req.Trace != nil && req.Trace.IsValid() {
			parent, hasParent = *req.Trace, true
		}
		if hasParent && !oteltrace.SpanContextFromContext(ctx).IsValid() {
			ctx = oteltrace.ContextWithRemoteSpanContext(ctx, parent.SpanContext())
		}
		parentSC := oteltrace.SpanContextFromContext(ctx)
		if !hasParent && parentSC.IsValid() {
			parent, hasParent = tracectx.FromSpanContext(parentSC), true
		}

		ctx, span := trace.StartClientSpan(ctx, tracer, string(req.Operation))
		defer span.End()

		var tc tracectx.TraceContext
		sc := span.SpanContext()
		switch {
		case sc.IsValid() && sc.SpanID() != parentSC.SpanID():
			tc = tracectx.FromSpanContext(sc)
			if hasParent {
				tc.ParentSpanID = parent.SpanID
			}
		case hasParent:
			// 未安装 SDK 时 otel 不会生成新 Span，由本地生成子上下文
			tc = parent.Child()
		default:
			tc = tracectx.NewRoot(true)
		}

		req.Trace = &tc
		if req.Headers == nil {
			req.Headers = make(map[string]string)
		}
		tracectx.Inject(propagation.MapCarrier(req.Headers), tc, formats...)
		if req.RequestID != "" {
			span.SetAttributes(attribute.String(trace.AttrAuthzRequestID, req.RequestID))
		}

		resp, err := next(tracectx.NewContext(ctx, tc), req)
		if resp != nil {
			if v := resp.Header(HeaderTransport); v != "" {
				span.SetAttributes(attribute.String(trace.AttrAuthzTransport, v))
			}
			if v := resp.Header(HeaderFallback); v != "" {
				span.SetAttributes(attribute.Bool(trace.AttrAuthzFallback, v == "true"))
			}
		}
		trace.MarkSpanError(span, err)
		return resp, err
	}
}

// Logging 记录每次调用的结果和耗时。成功为 Debug，失败为 Warn。
func Logging(logger clog.Logger) Interceptor {
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.WithNamespace("pipeline")
	return func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		// 成功调用只在 debug 级别输出
		if err == nil && !logger.Enabled(clog.DebugLevel) {
			return resp, nil
		}

		fields := []clog.Field{
			clog.String("operation", string(req.Operation)),
			clog.Duration("duration", time.Since(start)),
		}
		if resp != nil {
			if v := resp.Header(HeaderTransport); v != "" {
				fields = append(fields, clog.String("transport", v))
			}
			if resp.Header(HeaderFallback) == "true" {
				fields = append(fields, clog.Bool("fallback", true))
			}
			if resp.RequestID != "" {
				fields = append(fields, clog.String("server_request_id", resp.RequestID))
			}
		}
		if err != nil {
			logger.WarnContext(ctx, "authz call failed", append(fields, clog.ErrorWithKind(err))...)
		} else {
			logger.DebugContext(ctx, "authz call completed", fields...)
		}
		return resp, err
	}
}

// Metrics 记录调用数、耗时和在途数量
func Metrics(m *metrics.ClientMetrics) Interceptor {
	return func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		m.InflightInc(ctx)
		defer m.InflightDec(ctx)

		start := time.Now()
		resp, err := next(ctx, req)

		via := "none"
		if resp != nil {
			if v := resp.Header(HeaderTransport); v != "" {
				via = v
			}
		}
		m.ObserveCall(ctx, string(req.Operation), via, err, time.Since(start))
		return resp, err
	}
}

// Recover 把后续链路中的 panic 转换为 Internal 错误
func Recover(logger clog.Logger) Interceptor {
	if logger == nil {
		logger = clog.Discard()
	}
	logger = logger.WithNamespace("pipeline")
	return func(ctx context.Context, req *Request, next Handler) (resp *Response, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "panic recovered in pipeline",
					clog.String("operation", string(req.Operation)),
					clog.Any("panic", r))
				err = xerrors.Newf(xerrors.KindInternal, "panic: %v", r).WithOp(string(req.Operation))
				resp = Failure(err)
			}
		}()
		return next(ctx, req)
	}
}

// Only 只对给定操作执行 ic，其他操作直接放行
func Only(ic Interceptor, ops ...transport.Operation) Interceptor {
	set := make(map[transport.Operation]bool, len(ops))
	for _, op := range ops {
		set[op] = true
	}
	return func(ctx context.Context, req *Request, next Handler) (*Response, error) {
		if !set[req.Operation] {
			return next(ctx, req)
		}
		return ic(ctx, req, next)
	}
}
