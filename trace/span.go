package trace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/authzkit/xerrors"
)

func normalizeTracer(tracer oteltrace.Tracer) oteltrace.Tracer {
	if tracer == nil {
		return otel.Tracer(TracerName)
	}
	return tracer
}

// StartClientSpan 启动一次鉴权调用的 Client Span
func StartClientSpan(
	ctx context.Context,
	tracer oteltrace.Tracer,
	operation string,
	attrs ...attribute.KeyValue,
) (context.Context, oteltrace.Span) {
	tracer = normalizeTracer(tracer)
	spanCtx, span := tracer.Start(ctx, SpanNameClient(operation), oteltrace.WithSpanKind(oteltrace.SpanKindClient))
	span.SetAttributes(attribute.String(AttrAuthzOperation, operation))
	span.SetAttributes(attrs...)
	return spanCtx, span
}

// StartProducerSpan 启动一个发布消息的 Producer Span，并将上下文注入到 headers
func StartProducerSpan(
	ctx context.Context,
	tracer oteltrace.Tracer,
	destination string,
	attrs ...attribute.KeyValue,
) (context.Context, oteltrace.Span, map[string]string) {
	tracer = normalizeTracer(tracer)

	spanCtx, span := tracer.Start(ctx, SpanNameAudit(destination), oteltrace.WithSpanKind(oteltrace.SpanKindProducer))
	span.SetAttributes(
		attribute.String(AttrMessagingSystem, MessagingSystemNATS),
		attribute.String(AttrMessagingDestination, destination),
		attribute.String(AttrMessagingOperation, MessagingOperationPublish),
	)
	span.SetAttributes(attrs...)

	headers := map[string]string{}
	Inject(spanCtx, headers)
	return spanCtx, span, headers
}

// MarkSpanError 记录并将 Span 标记为错误，当 err 不为 nil 时
func MarkSpanError(span oteltrace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorKind, xerrors.KindOf(err).String()))
	span.SetStatus(codes.Error, err.Error())
}
