package breaker

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/metrics"
	"github.com/ceyewan/authzkit/xerrors"
)

// Breaker 按路由隔离的熔断器
type Breaker struct {
	cfg       *Config
	predicate FailurePredicate
	logger    clog.Logger
	metrics   *metrics.ClientMetrics
	listeners []Listener

	routes sync.Map // map[string]*route
}

// route 单个路由的熔断状态
type route struct {
	key     string
	cb      *gobreaker.CircuitBreaker[struct{}]
	probing atomic.Bool

	mu           sync.Mutex
	lastErr      string
	tripFailures uint32
	openedAt     time.Time
	closedAt     time.Time
}

// RouteKey 构造路由键，格式为 "transport@endpoint"
func RouteKey(transport, endpoint string) string {
	return transport + "@" + endpoint
}

// New 创建熔断器。cfg 中未设置的字段使用默认值。
func New(cfg *Config, opts ...Option) (*Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	pred, err := NewFailurePredicate(c.Include, c.Exclude)
	if err != nil {
		return nil, xerrors.WithKind(err, xerrors.KindConfiguration)
	}

	o := options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	o.logger.Debug("circuit breaker created",
		clog.Int("failure_threshold", int(c.FailureThreshold)),
		clog.Int("success_threshold", int(c.SuccessThreshold)),
		clog.Duration("timeout", c.Timeout),
		clog.Float64("failure_rate_threshold", c.FailureRateThreshold),
		clog.Int("minimum_requests", int(c.MinimumRequests)),
		clog.Duration("window", c.Window))

	return &Breaker{
		cfg:       &c,
		predicate: pred,
		logger:    o.logger,
		metrics:   o.metrics,
		listeners: o.listeners,
	}, nil
}

// Predicate 返回生效的失败判定
func (b *Breaker) Predicate() FailurePredicate {
	return b.predicate
}

// Execute 在路由 key 的熔断保护下执行 fn。
//
// Open 状态或半开状态已有探测在进行时，直接返回 KindCircuitOpen 错误，fn 不会被调用。
// fn 的错误原样返回。
func (b *Breaker) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrKeyEmpty
	}
	r := b.route(key)

	// 探测名额在 gobreaker 放行之后获取，与放行时看到的状态一致。
	// 未拿到名额的调用记为排除，不占用半开状态的请求数。
	probe := false
	defer func() {
		if probe {
			r.probing.Store(false)
		}
	}()

	var callErr error
	_, err := r.cb.Execute(func() (struct{}, error) {
		if r.cb.State() != gobreaker.StateClosed {
			if !r.probing.CompareAndSwap(false, true) {
				return struct{}{}, errProbeBusy
			}
			probe = true
		}
		callErr = fn(ctx)
		return struct{}{}, callErr
	})
	if errors.Is(err, errProbeBusy) || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.reject(ctx, key)
		return openError(key)
	}
	return callErr
}

// Allow 报告路由当前是否接受调用，不占用探测名额
func (b *Breaker) Allow(key string) bool {
	return b.State(key) != StateOpen
}

// State 返回路由当前状态，未使用过的路由为 Closed
func (b *Breaker) State(key string) State {
	v, ok := b.routes.Load(key)
	if !ok {
		return StateClosed
	}
	return fromGobreaker(v.(*route).cb.State())
}

// Snapshot 返回路由的状态快照
func (b *Breaker) Snapshot(key string) Snapshot {
	v, ok := b.routes.Load(key)
	if !ok {
		return Snapshot{Route: key, State: StateClosed}
	}
	return v.(*route).snapshot()
}

// Snapshots 返回所有已使用路由的快照，按路由键排序
func (b *Breaker) Snapshots() []Snapshot {
	var out []Snapshot
	b.routes.Range(func(_, v any) bool {
		out = append(out, v.(*route).snapshot())
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Route < out[j].Route })
	return out
}

// Reset 丢弃路由的熔断状态，下次调用从 Closed 重新开始
func (b *Breaker) Reset(key string) {
	b.routes.Delete(key)
}

func (b *Breaker) reject(ctx context.Context, key string) {
	b.metrics.BreakerReject(ctx, key)
	b.logger.DebugContext(ctx, "request rejected by open circuit", clog.String("route", key))
}

func (b *Breaker) route(key string) *route {
	if v, ok := b.routes.Load(key); ok {
		return v.(*route)
	}
	r := &route{key: key}
	r.cb = gobreaker.NewCircuitBreaker[struct{}](b.settings(r))
	actual, _ := b.routes.LoadOrStore(key, r)
	return actual.(*route)
}

func (b *Breaker) settings(r *route) gobreaker.Settings {
	cfg := b.cfg
	st := gobreaker.Settings{
		Name:        r.key,
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.Timeout,
		Interval:    cfg.Window,
	}
	if cfg.Window > 0 {
		st.BucketPeriod = cfg.Window / 10
	}

	st.IsExcluded = func(err error) bool {
		return errors.Is(err, errProbeBusy) || xerrors.KindOf(err) == xerrors.KindCancelled
	}
	st.IsSuccessful = func(err error) bool {
		if !b.predicate.IsFailure(err) {
			return true
		}
		r.mu.Lock()
		r.lastErr = err.Error()
		r.mu.Unlock()
		return false
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		trip := cfg.FailureThreshold > 0 && counts.ConsecutiveFailures >= cfg.FailureThreshold
		if !trip && cfg.FailureRateThreshold > 0 {
			valid := counts.Requests - counts.TotalExclusions
			if valid >= cfg.MinimumRequests && valid > 0 {
				trip = float64(counts.TotalFailures)/float64(valid) >= cfg.FailureRateThreshold
			}
		}
		if trip {
			r.mu.Lock()
			r.tripFailures = max(counts.ConsecutiveFailures, counts.TotalFailures)
			r.mu.Unlock()
		}
		return trip
	}
	// 在 gobreaker 内部锁中调用，不能再访问 r.cb
	st.OnStateChange = func(_ string, from, to gobreaker.State) {
		b.onStateChange(r, fromGobreaker(from), fromGobreaker(to))
	}
	return st
}

func (b *Breaker) onStateChange(r *route, from, to State) {
	now := time.Now()
	ev := Event{Route: r.key, From: from, To: to, At: now}

	r.mu.Lock()
	switch to {
	case StateOpen:
		ev.Type = EventOpened
		ev.LastError = r.lastErr
		ev.Failures = r.tripFailures
		if from == StateHalfOpen {
			ev.Failures = 1
		}
		r.openedAt = now
	case StateHalfOpen:
		ev.Type = EventHalfOpened
	case StateClosed:
		ev.Type = EventClosed
		ev.Successes = b.cfg.SuccessThreshold
		r.closedAt = now
		r.lastErr = ""
	}
	r.tripFailures = 0
	r.mu.Unlock()

	fields := []clog.Field{
		clog.String("route", r.key),
		clog.String("from", from.String()),
		clog.String("to", to.String()),
	}
	if ev.Type == EventOpened {
		b.logger.Warn("circuit breaker opened", append(fields,
			clog.Int("failures", int(ev.Failures)),
			clog.String("last_error", ev.LastError))...)
	} else {
		b.logger.Info("circuit breaker state changed", fields...)
	}
	b.metrics.BreakerTransition(context.Background(), r.key, from.String(), to.String())

	for _, l := range slices.Clone(b.listeners) {
		l(ev)
	}
}

func (r *route) snapshot() Snapshot {
	counts := r.cb.Counts()
	s := Snapshot{
		Route:                r.key,
		State:                fromGobreaker(r.cb.State()),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
	r.mu.Lock()
	s.LastError = r.lastErr
	s.OpenedAt = r.openedAt
	s.ClosedAt = r.closedAt
	r.mu.Unlock()
	return s
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}
