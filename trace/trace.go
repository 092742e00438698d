// Package trace 负责 OpenTelemetry TracerProvider 的初始化，并定义鉴权调用的 Span 名称和属性。
//
// 跨进程传播使用 tracectx 的编解码器，因此 W3C 和 B3 两种头格式都可以作为全局 Propagator。
package trace

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/authzkit/xerrors"
)

const exportTimeout = 5 * time.Second

// Init 初始化全局 TracerProvider，Span 经 OTLP gRPC 导出到 cfg.Endpoint（Tempo、Jaeger 等），
// 并按 cfg.Formats 设置全局 TextMapPropagator。
//
// 返回的函数在退出时调用，刷新尚未导出的 Span。
func Init(cfg *Config) (func(context.Context) error, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	ctx := context.Background()

	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(exportTimeout),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, xerrors.Wrap(err, "create otlp exporter")
	}

	// simple 逐个同步导出，便于调试；batch 为默认
	export := sdktrace.WithBatcher(exporter)
	if cfg.Batcher == "simple" {
		export = sdktrace.WithSyncer(exporter)
	}
	return install(ctx, cfg.ServiceName, cfg.Formats, cfg.Sampler, export)
}

// install 创建 TracerProvider 并连同 Propagator 一起设为全局
func install(ctx context.Context, serviceName string, formats []string, ratio float64, opts ...sdktrace.TracerProviderOption) (func(context.Context) error, error) {
	propagator, err := Propagator(formats)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{attribute.String(AttrTelemetryLibrary, TracerName)}
	if serviceName != "" {
		attrs = append(attrs, semconv.ServiceNameKey.String(serviceName))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, xerrors.Wrap(err, "create resource")
	}

	opts = append(opts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagator)
	return tp.Shutdown, nil
}
