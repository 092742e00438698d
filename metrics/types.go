// Package metrics 为 authzkit 提供统一的指标收集能力。
// 基于 OpenTelemetry 构建，默认通过 Prometheus exporter 暴露。
//
// 快速开始：
//
//	meter, err := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "billing-api",
//	    Port:        9090,
//	    Path:        "/metrics",
//	})
//	defer meter.Shutdown(ctx)
//
//	calls, _ := metrics.NewClientMetrics(meter)
//	calls.ObserveCall(ctx, "check", "grpc", err, elapsed)
//
// 未启用时返回 noop Meter，所有记录都是空操作。
package metrics

import "context"

// Counter 计数器，只增不减
type Counter interface {
	Inc(ctx context.Context, labels ...Label)
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘，记录瞬时值
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图，记录分布
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标创建工厂，创建的指标可并发使用
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 刷新指标并关闭 Prometheus HTTP 服务器（如果启动了）
	Shutdown(ctx context.Context) error
}

// MetricOption 指标选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项结构体
type MetricOptions struct {
	Unit    string
	Buckets []float64
}

// WithUnit 设置指标单位，建议使用 UCUM 单位代码，例如 "s"、"By"
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图桶边界，仅对 Histogram 生效
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = buckets
	}
}
