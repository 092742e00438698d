// Package cache 为 check 操作提供决策缓存。
//
// 缓存作为管道拦截器工作：命中时直接返回编码后的 CheckResponse，不进入调度器；
// 未命中时放行并把成功的结果写回。write、write_batch、delete 调用之后
// 整个缓存失效，因为一次关系变更可能影响任意决策。
//
// 两种存储：
//   - local: 进程内 otter 缓存，带容量上限
//   - redis: 多个客户端实例共享，值用 msgpack 或 json 编码
//
// 基本使用：
//
//	decisions, _ := cache.New(&cache.Config{Driver: "local", TTL: 5 * time.Second},
//	    cache.WithLogger(logger))
//	p := middleware.New(middleware.Dispatcher(d), decisions.Interceptor())
//
// 带上下文（caveat 参数）的 check 不会被缓存。
package cache

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// Decisions 决策缓存
type Decisions struct {
	cfg     Config
	store   Store
	logger  clog.Logger
	metrics *metrics.ClientMetrics

	// epoch 每次失效加一，查询到写回之间发生过失效的结果不写回
	epoch         atomic.Uint64
	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64
}

// Stats 缓存统计
type Stats struct {
	Driver        string `json:"driver"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

// New 创建决策缓存。redis 驱动会在创建时 PING 一次。
func New(cfg *Config, opts ...Option) (*Decisions, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()

	o := options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	store := o.store
	if store == nil {
		if err := c.validate(); err != nil {
			return nil, err
		}
		var err error
		switch {
		case c.Driver == DriverRedis && o.client != nil:
			store, err = NewRedisStore(o.client, c.Prefix, c.Serializer)
		case c.Driver == DriverRedis:
			store, err = dialRedis(context.Background(), &c)
		default:
			store, err = NewLocalStore(c.Capacity, c.TTL)
		}
		if err != nil {
			return nil, err
		}
	}

	o.logger.Info("decision cache created",
		clog.String("driver", c.Driver),
		clog.Duration("ttl", c.TTL),
		clog.Duration("denied_ttl", c.DeniedTTL),
		clog.Int("capacity", c.Capacity))

	return &Decisions{cfg: c, store: store, logger: o.logger, metrics: o.metrics}, nil
}

// Key 返回 check 请求的缓存键。
// 带上下文或一致性令牌的请求返回空串（不可缓存），令牌要求读到不早于某次写入的结果。
func Key(req *transport.CheckRequest) string {
	if req == nil || len(req.Context) > 0 || req.Consistency != "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(req.Subject.String())
	b.WriteByte('|')
	b.WriteString(req.Permission)
	b.WriteByte('|')
	b.WriteString(req.Resource.String())
	return b.String()
}

// Get 查询缓存
func (d *Decisions) Get(ctx context.Context, req *transport.CheckRequest) (*transport.CheckResponse, bool) {
	key := Key(req)
	if key == "" {
		return nil, false
	}
	return d.lookup(ctx, key)
}

// Put 写入一条决策
func (d *Decisions) Put(ctx context.Context, req *transport.CheckRequest, resp *transport.CheckResponse) {
	if key := Key(req); key != "" && resp != nil {
		d.put(ctx, key, resp)
	}
}

// Invalidate 使全部缓存失效
func (d *Decisions) Invalidate(ctx context.Context) {
	d.epoch.Add(1)
	d.invalidations.Add(1)
	if err := d.store.Purge(ctx); err != nil {
		d.logger.WarnContext(ctx, "failed to purge decision cache", clog.ErrorWithKind(err))
	}
}

// Stats 返回统计快照
func (d *Decisions) Stats() Stats {
	return Stats{
		Driver:        d.cfg.Driver,
		Hits:          d.hits.Load(),
		Misses:        d.misses.Load(),
		Invalidations: d.invalidations.Load(),
	}
}

// Close 释放存储
func (d *Decisions) Close() error {
	return d.store.Close()
}

func (d *Decisions) lookup(ctx context.Context, key string) (*transport.CheckResponse, bool) {
	resp, ok, err := d.store.Get(ctx, key)
	if err != nil {
		d.logger.WarnContext(ctx, "decision cache lookup failed", clog.ErrorWithKind(err))
		ok = false
	}
	if ok {
		d.hits.Add(1)
	} else {
		d.misses.Add(1)
	}
	d.metrics.CacheLookup(ctx, ok)
	return resp, ok
}

func (d *Decisions) put(ctx context.Context, key string, resp *transport.CheckResponse) {
	ttl := d.cfg.TTL
	if !resp.Allowed {
		ttl = d.cfg.DeniedTTL
	}
	if ttl <= 0 {
		return
	}
	if err := d.store.Set(ctx, key, resp, ttl); err != nil {
		d.logger.WarnContext(ctx, "decision cache write failed", clog.ErrorWithKind(err))
	}
}

// Interceptor 返回缓存拦截器
func (d *Decisions) Interceptor() middleware.Interceptor {
	return func(ctx context.Context, req *middleware.Request, next middleware.Handler) (*middleware.Response, error) {
		switch {
		case req.Operation == transport.OpCheck:
			return d.check(ctx, req, next)
		case req.Operation.IsWrite():
			resp, err := next(ctx, req)
			if err == nil || mayHaveApplied(err) {
				d.Invalidate(ctx)
			}
			return resp, err
		default:
			return next(ctx, req)
		}
	}
}

func (d *Decisions) check(ctx context.Context, req *middleware.Request, next middleware.Handler) (*middleware.Response, error) {
	var in transport.CheckRequest
	if err := middleware.Decode(req.Payload, &in); err != nil {
		return next(ctx, req)
	}
	key := Key(&in)
	if key == "" {
		return next(ctx, req)
	}

	epoch := d.epoch.Load()
	if cached, ok := d.lookup(ctx, key); ok {
		cached.RequestID = req.RequestID
		body, err := middleware.Encode(cached)
		if err == nil {
			resp := middleware.OK(body)
			resp.RequestID = req.RequestID
			resp.SetHeader(middleware.HeaderCache, "hit")
			return resp, nil
		}
	}

	resp, err := next(ctx, req)
	if err != nil || resp == nil || resp.Status != middleware.StatusOK {
		return resp, err
	}
	resp.SetHeader(middleware.HeaderCache, "miss")

	var out transport.CheckResponse
	if middleware.Decode(resp.Body, &out) == nil && d.epoch.Load() == epoch {
		d.put(ctx, key, &out)
	}
	return resp, nil
}

// mayHaveApplied 报告写入是否可能已在后端生效。
// 被本地拦截或被后端明确拒绝的调用不会改变状态。
func mayHaveApplied(err error) bool {
	switch xerrors.KindOf(err) {
	case xerrors.KindInvalidArgument, xerrors.KindSchemaViolation, xerrors.KindRateLimited,
		xerrors.KindCircuitOpen, xerrors.KindForbidden, xerrors.KindUnauthorized:
		return false
	}
	return true
}
