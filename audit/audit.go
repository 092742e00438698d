// Package audit 记录每次鉴权调用的审计事件。
//
// 审计拦截器位于管道内层，能看到实际使用的传输、是否降级以及缓存命中情况。
// 事件可以写成结构化日志，或以 JSON / msgpack 发布到 NATS 主题，
// 消息头携带 W3C / B3 追踪上下文，消费方可以把审计记录关联回调用链。
//
// 审计失败只记录告警，从不影响调用结果。
//
//	auditor, _ := audit.New(&audit.Config{Sink: "nats", NATS: audit.NATSConfig{URL: nats.DefaultURL}})
//	p := middleware.New(middleware.Dispatcher(d), auditor.Interceptor())
package audit

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/authzkit/clog"
	"github.com/ceyewan/authzkit/middleware"
	"github.com/ceyewan/authzkit/tracectx"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// Auditor 审计记录器
type Auditor struct {
	sink   Sink
	ops    map[transport.Operation]bool
	logger clog.Logger

	published atomic.Uint64
	dropped   atomic.Uint64
}

// Stats 审计统计
type Stats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

// New 创建审计记录器。nats 输出会在创建时建立连接。
func New(cfg *Config, opts ...Option) (*Auditor, error) {
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

	sink := o.sink
	if sink == nil {
		switch c.Sink {
		case SinkLog:
			sink = NewLogSink(o.logger)
		case SinkNATS:
			if o.conn != nil {
				sink = NewNATSSink(o.conn, c.NATS.Subject, c.Encoding, o.tracer)
				break
			}
			s, err := dialNATS(&c, o.tracer, o.logger)
			if err != nil {
				return nil, err
			}
			sink = s
		default:
			return nil, xerrors.Wrapf(ErrUnknownSink, "%q", c.Sink)
		}
	}

	o.logger.Info("auditor created",
		clog.String("sink", c.Sink),
		clog.String("encoding", c.Encoding),
		clog.Int("operations", len(c.filter())))

	return &Auditor{sink: sink, ops: c.filter(), logger: o.logger}, nil
}

// Stats 返回统计快照
func (a *Auditor) Stats() Stats {
	return Stats{Published: a.published.Load(), Dropped: a.dropped.Load()}
}

// Close 关闭输出
func (a *Auditor) Close() error {
	return a.sink.Close()
}

// Record 发布一条事件，失败只记录告警
func (a *Auditor) Record(ctx context.Context, ev *Event) {
	if err := a.sink.Publish(ctx, ev); err != nil {
		a.dropped.Add(1)
		a.logger.WarnContext(ctx, "failed to publish audit event",
			clog.String("event_id", ev.ID), clog.ErrorWithKind(err))
		return
	}
	a.published.Add(1)
}

// Interceptor 返回审计拦截器
func (a *Auditor) Interceptor() middleware.Interceptor {
	return func(ctx context.Context, req *middleware.Request, next middleware.Handler) (*middleware.Response, error) {
		if !a.ops[req.Operation] {
			return next(ctx, req)
		}
		start := time.Now()
		resp, err := next(ctx, req)
		a.Record(ctx, buildEvent(ctx, req, resp, err, start))
		return resp, err
	}
}

func buildEvent(ctx context.Context, req *middleware.Request, resp *middleware.Response, err error, start time.Time) *Event {
	ev := &Event{
		ID:        newEventID(),
		Time:      start.UTC(),
		Operation: string(req.Operation),
		Outcome:   OutcomeOK,
		RequestID: req.RequestID,
		Duration:  time.Since(start),
	}
	if tc, ok := tracectx.FromContext(ctx); ok {
		ev.TraceID = tc.TraceID.String()
	} else if req.Trace != nil {
		ev.TraceID = req.Trace.TraceID.String()
	}
	if resp != nil {
		ev.Transport = resp.Header(middleware.HeaderTransport)
		ev.Fallback, _ = strconv.ParseBool(resp.Header(middleware.HeaderFallback))
		ev.Cache = resp.Header(middleware.HeaderCache)
		if ev.RequestID == "" {
			ev.RequestID = resp.RequestID
		}
	}
	if err != nil {
		ev.Outcome = OutcomeError
		ev.ErrorKind = xerrors.KindOf(err).String()
		ev.Error = err.Error()
		if id := xerrors.RequestIDOf(err); id != "" && ev.RequestID == "" {
			ev.RequestID = id
		}
	}
	describe(ev, req, resp, err)
	return ev
}

// describe 填充操作相关的内容，负载解码失败时忽略
func describe(ev *Event, req *middleware.Request, resp *middleware.Response, err error) {
	switch req.Operation {
	case transport.OpCheck:
		var in transport.CheckRequest
		if middleware.Decode(req.Payload, &in) != nil {
			return
		}
		ev.Subject = in.Subject.String()
		ev.Permission = in.Permission
		ev.Resource = in.Resource.String()
		if err != nil || resp == nil {
			return
		}
		var out transport.CheckResponse
		if middleware.Decode(resp.Body, &out) == nil {
			ev.Allowed = &out.Allowed
		}
	case transport.OpWrite:
		var in transport.WriteRequest
		if middleware.Decode(req.Payload, &in) == nil {
			ev.Relationships = len(in.Relationships)
		}
	case transport.OpWriteBatch:
		var in transport.WriteBatchRequest
		if middleware.Decode(req.Payload, &in) == nil {
			for _, w := range in.Writes {
				ev.Relationships += len(w.Relationships)
			}
		}
	}
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
