package clog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ceyewan/authzkit/tracectx"
	"go.opentelemetry.io/otel/trace"
)

// NamespaceKey 是日志中命名空间的字段名
const NamespaceKey = "namespace"

func extractContextFields(ctx context.Context, o *options, attrs *[]slog.Attr) {
	if ctx == nil || o == nil {
		return
	}

	for _, cf := range o.contextFields {
		if val := ctx.Value(cf.Key); val != nil {
			*attrs = append(*attrs, slog.Any(cf.FieldName, val))
		}
	}

	if o.enableTraceExtraction {
		extractTraceFields(ctx, attrs)
	}
}

func extractTraceFields(ctx context.Context, attrs *[]slog.Attr) {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		*attrs = append(*attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	} else if tc, ok := tracectx.FromContext(ctx); ok {
		*attrs = append(*attrs,
			slog.String("trace_id", tc.TraceID.String()),
			slog.String("span_id", tc.SpanID.String()),
		)
	}

	if id := tracectx.RequestIDFromContext(ctx); id != "" {
		*attrs = append(*attrs, slog.String("request_id", id))
	}
}

func addNamespaceField(o *options, attrs *[]slog.Attr) {
	if o == nil || len(o.namespaceParts) == 0 {
		return
	}
	*attrs = append(*attrs, slog.String(NamespaceKey, strings.Join(o.namespaceParts, ".")))
}
