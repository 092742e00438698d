package tracectx

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// SpanContext 转换为 OpenTelemetry SpanContext，父 span id 会被丢弃
func (tc TraceContext) SpanContext() trace.SpanContext {
	cfg := trace.SpanContextConfig{
		TraceID:    trace.TraceID(tc.TraceID),
		SpanID:     trace.SpanID(tc.SpanID),
		TraceFlags: trace.TraceFlags(tc.Flags),
		Remote:     true,
	}
	if tc.TraceState != "" {
		if ts, err := trace.ParseTraceState(tc.TraceState); err == nil {
			cfg.TraceState = ts
		}
	}
	return trace.NewSpanContext(cfg)
}

// FromSpanContext 由 OpenTelemetry SpanContext 构造链路上下文
func FromSpanContext(sc trace.SpanContext) TraceContext {
	return TraceContext{
		TraceID:    TraceID(sc.TraceID()),
		SpanID:     SpanID(sc.SpanID()),
		Flags:      byte(sc.TraceFlags()),
		TraceState: sc.TraceState().String(),
	}
}

// Propagator 把本包的编解码暴露为 OpenTelemetry TextMapPropagator，
// 使 otel 插桩（otelgrpc、otelhttp）也能读写 B3 头。
type Propagator struct {
	formats []Format
}

var _ propagation.TextMapPropagator = (*Propagator)(nil)

// NewPropagator formats 为空时使用 DefaultFormats
func NewPropagator(formats ...Format) *Propagator {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	return &Propagator{formats: formats}
}

func (p *Propagator) Inject(ctx context.Context, carrier propagation.TextMapCarrier) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		tc, ok := FromContext(ctx)
		if !ok {
			return
		}
		Inject(carrier, tc, p.formats...)
		return
	}
	Inject(carrier, FromSpanContext(sc), p.formats...)
}

func (p *Propagator) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	tc, err := Extract(carrier, p.formats...)
	if err != nil {
		return ctx
	}
	ctx = NewContext(ctx, tc)
	return trace.ContextWithRemoteSpanContext(ctx, tc.SpanContext())
}

func (p *Propagator) Fields() []string {
	return Fields(p.formats...)
}
