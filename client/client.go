// Package client 把传输、熔断、重试、调度和中间件管道组装成一个鉴权客户端。
//
// 请求在管道中的顺序（外层在前）：
//
//	Recover → RequestID → Headers → Tracing → Logging → Metrics
//	  → Audit → Cache → RateLimit → Auth → 自定义拦截器 → Dispatcher
//
// 审计位于缓存和限流之外，因此缓存命中和被限流的调用同样会留下记录；
// 凭证只在真正发往后端的调用上注入。
//
// 基本使用：
//
//	cfg := client.DefaultConfig()
//	cfg.GRPC.Address = "authz.internal:50051"
//	cfg.REST.BaseURL = "https://authz.internal"
//	c, err := client.New(cfg)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	if err := c.Require(ctx, req); err != nil {
//	    // xerrors.IsAccessDenied(err) 表示评估结果为拒绝
//	}
package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/authzkit/audit"
	"github.com/ceyewan/authzkit/auth"
	"github.com/ceyewan/authzkit/breaker"
	"github.com/ceyewan/authzkit/cache"
	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/dispatch"
	"github.com/ceyewan/authzkit/internal/tlsutil"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/ratelimit"
	"github.com/ceyewan/authzkit/retry"
	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/transport/grpctransport"
	"github.com/ceyewan/authzkit/transport/resttransport"
	"github.com/ceyewan/authzkit/xerrors"
)

// Client 鉴权客户端，并发安全
type Client struct {
	dispatcher *dispatch.Dispatcher
	pipeline   *middleware.Pipeline
	breaker    *breaker.Breaker
	cache      *cache.Decisions
	auditor    *audit.Auditor
	logger     clog.Logger

	// closers 按注册的逆序执行
	closers []closer

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Stats 客户端诊断信息。未启用的组件为 nil。
type Stats struct {
	Dispatch dispatch.Stats `json:"dispatch"`
	Cache    *cache.Stats   `json:"cache,omitempty"`
	Audit    *audit.Stats   `json:"audit,omitempty"`
}

// New 创建客户端。至少需要一个传输：配置了 grpc.address / rest.base_url，
// 或通过 WithGRPCTransport / WithRESTTransport 注入。
//
// 创建过程中任一步失败时，已创建的组件会被关闭。
func New(cfg *Config, opts ...Option) (_ *Client, err error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	cl := &Client{}
	defer func() {
		if err != nil {
			_ = cl.runClosers(context.Background())
		}
	}()

	logger := o.logger
	if logger == nil {
		if logger, err = clog.New(&c.Log, clog.WithTraceContext()); err != nil {
			return nil, xerrors.E(xerrors.KindConfiguration, err, "create logger")
		}
		cl.onClose("logger", func(context.Context) error {
			logger.Flush()
			return nil
		})
	}
	cl.logger = logger

	meter := o.meter
	if meter == nil {
		if meter, err = metrics.New(&c.Metrics, metrics.WithLogger(logger)); err != nil {
			return nil, xerrors.WithKind(err, xerrors.KindConfiguration)
		}
		cl.onClose("metrics", meter.Shutdown)
	}
	cm, err := metrics.NewClientMetrics(meter)
	if err != nil {
		return nil, err
	}

	formats, err := trace.ParseFormats(c.Trace.Formats)
	if err != nil {
		return nil, err
	}
	if c.Trace.Export {
		shutdown, err := trace.Init(&c.Trace.Config)
		if err != nil {
			return nil, xerrors.WithKind(err, xerrors.KindConfiguration)
		}
		cl.onClose("trace", shutdown)
	}

	if cl.breaker, err = breaker.New(&c.Breaker, breaker.WithLogger(logger), breaker.WithMetrics(cm)); err != nil {
		return nil, err
	}

	dopts, owned, err := transports(&c, &o, logger)
	if err != nil {
		return nil, err
	}
	// 只关闭自行创建的传输，WithGRPCTransport/WithRESTTransport 传入的由调用方关闭
	for _, t := range owned {
		cl.onClose(t.Kind().String()+" transport", func(context.Context) error { return t.Close() })
	}
	dopts = append(dopts,
		dispatch.WithoutTransportClose(),
		dispatch.WithBreaker(cl.breaker),
		dispatch.WithRetry(retry.New(c.Retry)),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(cm),
	)
	for _, l := range o.fallbacks {
		dopts = append(dopts, dispatch.WithFallbackListener(l))
	}
	if cl.dispatcher, err = dispatch.New(&c.Dispatch, dopts...); err != nil {
		return nil, err
	}

	ics := []middleware.Interceptor{
		middleware.Recover(logger),
		middleware.RequestID(),
		middleware.Headers(c.Headers),
		middleware.Tracing(o.tracer, formats...),
		middleware.Logging(logger),
		middleware.Metrics(cm),
	}

	if c.Audit.Enabled() || o.auditSink != nil {
		aopts := []audit.Option{audit.WithLogger(logger), audit.WithTracer(o.tracer)}
		if o.nats != nil {
			aopts = append(aopts, audit.WithNATSConn(o.nats))
		}
		if o.auditSink != nil {
			aopts = append(aopts, audit.WithSink(o.auditSink))
		}
		if cl.auditor, err = audit.New(&c.Audit, aopts...); err != nil {
			return nil, err
		}
		cl.onClose("audit", func(context.Context) error { return cl.auditor.Close() })
		ics = append(ics, cl.auditor.Interceptor())
	}

	if c.Cache.Enabled() {
		copts := []cache.Option{cache.WithLogger(logger), cache.WithMetrics(cm)}
		if o.redis != nil {
			copts = append(copts, cache.WithRedisClient(o.redis))
		}
		if cl.cache, err = cache.New(&c.Cache, copts...); err != nil {
			return nil, err
		}
		cl.onClose("cache", func(context.Context) error { return cl.cache.Close() })
		ics = append(ics, cl.cache.Interceptor())
	}

	if c.RateLimit.Enabled() {
		limiter, err := ratelimit.New(&c.RateLimit, ratelimit.WithLogger(logger), ratelimit.WithMetrics(cm))
		if err != nil {
			return nil, err
		}
		ics = append(ics, limiter.Interceptor())
	}

	if c.Auth.Enabled() {
		creds, err := auth.New(&c.Auth, auth.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		ics = append(ics, creds.Interceptor())
	}

	ics = append(ics, o.interceptors...)
	cl.pipeline = middleware.New(middleware.Dispatcher(cl.dispatcher), ics...)

	logger.Info("authz client created",
		clog.String("strategy", string(cl.dispatcher.Strategy())),
		clog.Int("transports", len(cl.dispatcher.Transports())),
		clog.Int("interceptors", cl.pipeline.Len()),
		clog.Bool("cache", cl.cache != nil),
		clog.Bool("audit", cl.auditor != nil))
	return cl, nil
}

// transports 创建或采用 gRPC 和 REST 传输，返回对应的调度器选项和自行创建的传输
func transports(c *Config, o *options, logger clog.Logger) ([]dispatch.Option, []transport.Transport, error) {
	tlsCfg, err := tlsutil.Build(&c.TLS)
	if err != nil {
		return nil, nil, err
	}

	var (
		dopts []dispatch.Option
		owned []transport.Transport
	)
	switch {
	case o.grpc != nil:
		dopts = append(dopts, dispatch.WithGRPC(o.grpc))
	case c.GRPC.Address != "":
		t, err := grpctransport.New(&c.GRPC, grpctransport.WithLogger(logger), grpctransport.WithTLS(tlsCfg))
		if err != nil {
			return nil, nil, err
		}
		owned = append(owned, t)
		dopts = append(dopts, dispatch.WithGRPC(t))
	}

	switch {
	case o.rest != nil:
		dopts = append(dopts, dispatch.WithREST(o.rest))
	case c.REST.BaseURL != "":
		rc := c.restConfig()
		t, err := resttransport.New(&rc, resttransport.WithLogger(logger), resttransport.WithTLS(tlsCfg))
		if err != nil {
			for _, t := range owned {
				_ = t.Close()
			}
			return nil, nil, err
		}
		owned = append(owned, t)
		dopts = append(dopts, dispatch.WithREST(t))
	}

	if len(dopts) == 0 {
		return nil, nil, ErrNoTransport
	}
	return dopts, owned, nil
}

func (cl *Client) onClose(name string, fn func(ctx context.Context) error) {
	cl.closers = append(cl.closers, closer{name: name, fn: fn})
}

// runClosers 先关闭调度器，再按注册的逆序关闭其他组件
func (cl *Client) runClosers(ctx context.Context) error {
	var errs []error
	if cl.dispatcher != nil {
		if err := cl.dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, xerrors.Wrap(err, "close dispatcher"))
		}
	}
	for i := len(cl.closers) - 1; i >= 0; i-- {
		if err := cl.closers[i].fn(ctx); err != nil {
			errs = append(errs, xerrors.Wrapf(err, "close %s", cl.closers[i].name))
		}
	}
	return xerrors.Combine(errs...)
}

// Do 通过管道执行一次原始调用，供需要直接操作信封的调用方使用
func (cl *Client) Do(ctx context.Context, req *middleware.Request) (*middleware.Response, error) {
	if cl.closed.Load() {
		var op string
		if req != nil {
			op = string(req.Operation)
		}
		err := xerrors.ShuttingDown(op)
		return middleware.Failure(err), err
	}
	return cl.pipeline.Do(ctx, req)
}

// Stats 返回诊断快照
func (cl *Client) Stats() Stats {
	s := Stats{Dispatch: cl.dispatcher.Stats()}
	if cl.cache != nil {
		cs := cl.cache.Stats()
		s.Cache = &cs
	}
	if cl.auditor != nil {
		as := cl.auditor.Stats()
		s.Audit = &as
	}
	return s
}

// Probe 绕过管道、熔断和重试，对每个传输做一次健康检查
func (cl *Client) Probe(ctx context.Context) map[transport.Kind]error {
	return cl.dispatcher.Probe(ctx)
}

// Breakers 返回各路由的熔断快照
func (cl *Client) Breakers() []breaker.Snapshot {
	return cl.breaker.Snapshots()
}

// InvalidateCache 清空决策缓存，未启用缓存时什么也不做
func (cl *Client) InvalidateCache(ctx context.Context) {
	if cl.cache != nil {
		cl.cache.Invalidate(ctx)
	}
}

// Shutdown 拒绝新调用，等待在途调用结束后依次关闭调度器、缓存、审计和可观测组件。
// 重复调用返回第一次的结果。
func (cl *Client) Shutdown(ctx context.Context) error {
	cl.closeOnce.Do(func() {
		cl.closed.Store(true)
		cl.closeErr = cl.runClosers(ctx)
		if cl.closeErr != nil {
			cl.logger.Warn("authz client closed with errors", clog.Error(cl.closeErr))
		}
	})
	return cl.closeErr
}

// Close 使用配置的宽限期关闭
func (cl *Client) Close() error {
	return cl.Shutdown(context.Background())
}
