// Package dispatch 实现传输调度：按策略选择传输，在熔断保护下发起调用，
// 根据统一错误类型决定重试和降级。
//
// 调用流程：
//
//	Call → 选定主传输 → 熔断检查 → 传输调用
//	     → 失败且命中降级条件：切换到备用传输（每次调用最多一次，之后不再切回）
//	     → 否则按重试策略等待后在当前传输上重试
//
// 重试和降级都受同一个调用时限约束，超时以 KindTimeout 返回。
// Shutdown 之后的新调用立即以 xerrors.ErrShuttingDown 失败，在途调用在宽限期内完成。
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/authzkit/breaker"
	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/retry"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// Func 在选定的传输上执行一次操作
type Func func(ctx context.Context, t transport.Transport) error

// Result 一次逻辑调用的执行信息
type Result struct {
	// Transport 最后一次尝试使用的传输
	Transport transport.Kind
	Attempts  int
	Retries   int
	Fallback  bool
}

// FallbackEvent 一次传输降级
type FallbackEvent struct {
	From      transport.Kind
	To        transport.Kind
	Reason    xerrors.Kind
	Operation transport.Operation
	At        time.Time
	// Count 包含本次在内的累计降级次数
	Count uint64
}

// FallbackListener 降级事件监听器，在调用所在的 goroutine 中同步执行
type FallbackListener func(FallbackEvent)

// Stats 调度器诊断信息
type Stats struct {
	Strategy     Strategy
	Fallbacks    uint64
	LastFallback *FallbackEvent
	Transports   map[transport.Kind]transport.StatsSnapshot
	Breakers     []breaker.Snapshot
	ShuttingDown bool
}

// Dispatcher 传输调度器，并发安全
type Dispatcher struct {
	strategy  Strategy
	triggers  map[xerrors.Kind]bool
	timeout   time.Duration
	grace     time.Duration
	primary   transport.Transport
	secondary transport.Transport
	all       []transport.Transport

	breaker   *breaker.Breaker
	retry     *retry.Policy
	logger    clog.Logger
	metrics   *metrics.ClientMetrics
	listeners []FallbackListener

	keepTransports bool

	fallbacks atomic.Uint64
	lastMu    sync.Mutex
	last      *FallbackEvent

	mu       sync.RWMutex
	closing  bool
	inflight sync.WaitGroup
	abort    context.Context
	cancel   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// New 创建调度器
func New(cfg *Config, opts ...Option) (*Dispatcher, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	strategy, triggers, err := c.parse()
	if err != nil {
		return nil, err
	}

	o := options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.retry == nil {
		o.retry = retry.New(retry.Disabled())
	}

	d := &Dispatcher{
		strategy:  strategy,
		triggers:  triggers,
		timeout:   c.Timeout,
		grace:     c.ShutdownGrace,
		breaker:   o.breaker,
		retry:     o.retry,
		logger:    o.logger,
		metrics:   o.metrics,
		listeners: o.listeners,

		keepTransports: o.keepTransports,
	}
	for _, t := range []transport.Transport{o.grpc, o.rest} {
		if t != nil {
			d.all = append(d.all, t)
		}
	}

	switch strategy {
	case StrategyGRPCOnly:
		d.primary = o.grpc
	case StrategyRESTOnly:
		d.primary = o.rest
	case StrategyPreferGRPC:
		if o.grpc != nil {
			d.primary, d.secondary = o.grpc, o.rest
		} else if o.rest != nil {
			// gRPC 传输没有建立起来，直接使用 REST
			d.primary = o.rest
			d.logger.Warn("grpc transport unavailable, dispatching over rest only")
		}
	}
	if d.primary == nil {
		return nil, xerrors.Wrapf(ErrNoTransport, "%s", strategy)
	}

	d.abort, d.cancel = context.WithCancel(context.Background())

	fields := []clog.Field{
		clog.String("strategy", string(strategy)),
		clog.String("primary", d.primary.Kind().String()),
		clog.Duration("timeout", d.timeout),
		clog.Int("max_retries", d.retry.MaxRetries()),
	}
	if d.secondary != nil {
		fields = append(fields, clog.String("fallback", d.secondary.Kind().String()))
	}
	d.logger.Info("dispatcher created", fields...)
	return d, nil
}

// Strategy 返回生效的策略
func (d *Dispatcher) Strategy() Strategy {
	return d.strategy
}

// Transports 返回全部已配置的传输
func (d *Dispatcher) Transports() []transport.Transport {
	return append([]transport.Transport(nil), d.all...)
}

// Fallbacks 返回累计降级次数
func (d *Dispatcher) Fallbacks() uint64 {
	return d.fallbacks.Load()
}

// Closing 报告调度器是否已进入关闭流程
func (d *Dispatcher) Closing() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closing
}

// Call 调度一次逻辑调用。fn 可能被调用多次（重试或降级），每次传入当前选中的传输。
func (d *Dispatcher) Call(ctx context.Context, op transport.Operation, fn Func) (Result, error) {
	var res Result
	if !d.enter() {
		return res, xerrors.ShuttingDown(string(op))
	}
	defer d.inflight.Done()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(d.abort, cancel)
	defer stop()

	current, onPrimary := d.primary, true
	for {
		res.Attempts++
		res.Transport = current.Kind()

		err := d.attempt(ctx, current, fn)
		if err == nil {
			return res, nil
		}
		err = d.finalize(ctx, op, err)
		kind := xerrors.KindOf(err)

		if onPrimary && d.secondary != nil && d.triggers[kind] && ctx.Err() == nil {
			d.recordFallback(ctx, op, current, d.secondary, kind, err)
			current, onPrimary = d.secondary, false
			res.Fallback = true
			continue
		}

		ok, delay := d.retry.Decide(err, res.Retries)
		if !ok || ctx.Err() != nil {
			return res, err
		}
		res.Retries++
		d.metrics.Retry(ctx, string(op), kind)
		d.logger.DebugContext(ctx, "retrying call",
			clog.String("operation", string(op)),
			clog.String("transport", current.Kind().String()),
			clog.Int("retry", res.Retries),
			clog.Duration("delay", delay),
			clog.ErrorWithKind(err))

		if serr := retry.Sleep(ctx, delay); serr != nil {
			return res, d.finalize(ctx, op, serr)
		}
	}
}

func (d *Dispatcher) enter() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closing {
		return false
	}
	d.inflight.Add(1)
	return true
}

func (d *Dispatcher) attempt(ctx context.Context, t transport.Transport, fn Func) error {
	if d.breaker == nil {
		return fn(ctx, t)
	}
	key := breaker.RouteKey(t.Kind().String(), t.Endpoint())
	return d.breaker.Execute(ctx, key, func(ctx context.Context) error {
		return fn(ctx, t)
	})
}

// finalize 统一调用结束时的错误：关闭中止优先，其次是 ctx 超时或取消
func (d *Dispatcher) finalize(ctx context.Context, op transport.Operation, err error) error {
	if d.abort.Err() != nil {
		return xerrors.ShuttingDown(string(op))
	}
	if cerr := ctx.Err(); cerr != nil {
		switch xerrors.KindOf(err) {
		case xerrors.KindTimeout, xerrors.KindCancelled:
			return err
		}
		if e, ok := xerrors.FromContext(cerr).(*xerrors.Error); ok {
			return e.WithOp(string(op))
		}
	}
	return err
}

func (d *Dispatcher) recordFallback(ctx context.Context, op transport.Operation, from, to transport.Transport, reason xerrors.Kind, cause error) {
	ev := FallbackEvent{
		From:      from.Kind(),
		To:        to.Kind(),
		Reason:    reason,
		Operation: op,
		At:        time.Now(),
	}
	ev.Count = d.fallbacks.Add(1)

	d.lastMu.Lock()
	last := ev
	d.last = &last
	d.lastMu.Unlock()

	d.metrics.Fallback(ctx, ev.From.String(), ev.To.String(), reason)
	d.logger.WarnContext(ctx, "transport fallback",
		clog.String("operation", string(op)),
		clog.String("from", ev.From.String()),
		clog.String("to", ev.To.String()),
		clog.Int64("count", int64(ev.Count)),
		clog.ErrorWithKind(cause))

	for _, l := range d.listeners {
		l(ev)
	}
}

// Stats 返回诊断快照
func (d *Dispatcher) Stats() Stats {
	s := Stats{
		Strategy:     d.strategy,
		Fallbacks:    d.fallbacks.Load(),
		Transports:   make(map[transport.Kind]transport.StatsSnapshot, len(d.all)),
		ShuttingDown: d.Closing(),
	}
	d.lastMu.Lock()
	if d.last != nil {
		ev := *d.last
		s.LastFallback = &ev
	}
	d.lastMu.Unlock()

	for _, t := range d.all {
		s.Transports[t.Kind()] = t.Stats()
	}
	if d.breaker != nil {
		s.Breakers = d.breaker.Snapshots()
	}
	return s
}

// Probe 绕过熔断和重试，直接对每个传输做一次健康检查
func (d *Dispatcher) Probe(ctx context.Context) map[transport.Kind]error {
	out := make(map[transport.Kind]error, len(d.all))
	for _, t := range d.all {
		out[t.Kind()] = t.HealthCheck(ctx)
	}
	return out
}

// Shutdown 拒绝新调用，等待在途调用完成后关闭全部传输（WithoutTransportClose 时跳过）。
//
// ctx 没有截止时间时使用配置的宽限期；宽限期结束仍未完成的调用被中止，
// 以 ErrShuttingDown 返回。重复调用返回第一次的结果。
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closing = true
		d.mu.Unlock()

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.grace)
			defer cancel()
		}

		done := make(chan struct{})
		go func() {
			d.inflight.Wait()
			close(done)
		}()

		var errs []error
		select {
		case <-done:
		case <-ctx.Done():
			d.logger.Warn("shutdown grace period expired, aborting in-flight calls")
			d.cancel()
			<-done
			errs = append(errs, xerrors.Wrap(ctx.Err(), "wait in-flight calls"))
		}
		d.cancel()

		if !d.keepTransports {
			for _, t := range d.all {
				if err := t.Close(); err != nil {
					errs = append(errs, xerrors.Wrapf(err, "close %s transport", t.Kind()))
				}
			}
		}
		d.closeErr = xerrors.Combine(errs...)
		d.logger.Info("dispatcher shut down", clog.Int64("fallbacks", int64(d.fallbacks.Load())))
	})
	return d.closeErr
}

// Close 使用配置的宽限期关闭
func (d *Dispatcher) Close() error {
	return d.Shutdown(context.Background())
}
