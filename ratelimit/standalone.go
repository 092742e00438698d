package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

const sharedKey = "*"

// Limiter 客户端令牌桶限流器，并发安全
type Limiter struct {
	cfg     Config
	logger  clog.Logger
	metrics *metrics.ClientMetrics

	buckets sync.Map // map[string]*rate.Limiter
}

// New 创建限流器
func New(cfg *Config, opts ...Option) (*Limiter, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	o.logger.Info("client rate limiter created",
		clog.Float64("rate", c.Rate),
		clog.Int("burst", c.Burst),
		clog.Bool("per_operation", c.PerOperation),
		clog.Bool("wait", c.Wait))

	return &Limiter{cfg: c, logger: o.logger, metrics: o.metrics}, nil
}

// limitFor 返回操作适用的规则和桶键
func (l *Limiter) limitFor(op transport.Operation) (Limit, string) {
	if lim, ok := l.cfg.Operations[string(op)]; ok {
		return lim, string(op)
	}
	key := sharedKey
	if l.cfg.PerOperation {
		key = string(op)
	}
	return l.cfg.Limit, key
}

func (l *Limiter) bucket(key string, lim Limit) *rate.Limiter {
	if v, ok := l.buckets.Load(key); ok {
		return v.(*rate.Limiter)
	}
	actual, _ := l.buckets.LoadOrStore(key, rate.NewLimiter(rate.Limit(lim.Rate), lim.Burst))
	return actual.(*rate.Limiter)
}

// Acquire 为一次 op 调用获取令牌。
// 令牌不足时：Wait 模式下在 ctx 约束下等待，否则返回带 RetryAfter 的 RateLimited 错误。
func (l *Limiter) Acquire(ctx context.Context, op transport.Operation) error {
	lim, key := l.limitFor(op)
	if !lim.valid() {
		return nil
	}
	b := l.bucket(key, lim)

	r := b.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	if l.cfg.Wait {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			r.Cancel()
			return xerrors.FromContext(ctx.Err())
		}
	}

	r.Cancel()
	l.metrics.RateLimited(ctx, string(op))
	l.logger.DebugContext(ctx, "call rejected by client rate limiter",
		clog.String("operation", string(op)),
		clog.String("bucket", key),
		clog.Duration("retry_after", delay))
	return &xerrors.Error{
		Kind:       xerrors.KindRateLimited,
		Op:         string(op),
		Message:    "client-side rate limit exceeded",
		RetryAfter: delay,
	}
}

// Interceptor 返回限流拦截器，被拒绝的调用不会进入后续链路
func (l *Limiter) Interceptor() middleware.Interceptor {
	return func(ctx context.Context, req *middleware.Request, next middleware.Handler) (*middleware.Response, error) {
		if err := l.Acquire(ctx, req.Operation); err != nil {
			return middleware.Failure(err), err
		}
		return next(ctx, req)
	}
}
