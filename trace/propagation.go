package trace

import (
	"context"

	"github.com/ceyewan/authzkit/tracectx"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Propagator 由头格式名称构造 Propagator：tracectx 编解码器加 Baggage
func Propagator(formats []string) (propagation.TextMapPropagator, error) {
	fs, err := ParseFormats(formats)
	if err != nil {
		return nil, err
	}
	return propagation.NewCompositeTextMapPropagator(
		tracectx.NewPropagator(fs...),
		propagation.Baggage{},
	), nil
}

// Inject 使用全局 Propagator 把 ctx 中的 Span 写入 headers
func Inject(ctx context.Context, headers map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(headers))
}

// Extract 使用全局 Propagator 从 headers 恢复远端 Span
func Extract(ctx context.Context, headers map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(headers))
}
