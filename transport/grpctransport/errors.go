package grpctransport

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/xerrors"
)

// CodeKind 把 gRPC 状态码映射为统一错误类型，覆盖全部状态码
func CodeKind(c codes.Code) xerrors.Kind {
	switch c {
	case codes.Canceled:
		return xerrors.KindCancelled
	case codes.InvalidArgument, codes.AlreadyExists, codes.OutOfRange:
		return xerrors.KindInvalidArgument
	case codes.DeadlineExceeded:
		return xerrors.KindTimeout
	case codes.NotFound:
		return xerrors.KindNotFound
	case codes.PermissionDenied:
		return xerrors.KindForbidden
	case codes.ResourceExhausted:
		return xerrors.KindRateLimited
	case codes.FailedPrecondition:
		return xerrors.KindSchemaViolation
	case codes.Aborted, codes.Unavailable:
		return xerrors.KindUnavailable
	case codes.Unimplemented:
		return xerrors.KindProtocol
	case codes.Internal, codes.DataLoss:
		return xerrors.KindInternal
	case codes.Unauthenticated:
		return xerrors.KindUnauthorized
	default:
		// codes.Unknown 以及协议之外的取值
		return xerrors.KindUnknown
	}
}

// MapError 把 gRPC 调用错误翻译为统一错误。
// 调用方 context 已结束时按超时或取消处理；非 status 错误视为连接错误。
// RateLimited 的延迟取自 RetryInfo，其次取 retry-after 元数据（秒）。
func MapError(ctx context.Context, op transport.Operation, err error, mds ...metadata.MD) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return transport.NetworkError(ctx, op, ctxErr)
	}
	st, ok := status.FromError(err)
	if !ok {
		return transport.NetworkError(ctx, op, err)
	}

	e := &xerrors.Error{
		Kind:    CodeKind(st.Code()),
		Op:      string(op),
		Message: st.Message(),
		Cause:   err,
	}
	for _, d := range st.Details() {
		switch v := d.(type) {
		case *errdetails.RetryInfo:
			e.RetryAfter = v.GetRetryDelay().AsDuration()
		case *errdetails.RequestInfo:
			e.RequestID = v.GetRequestId()
		}
	}
	if e.RetryAfter == 0 {
		if secs, err := strconv.Atoi(first(MetadataRetryAfter, mds...)); err == nil && secs > 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	if e.RequestID == "" {
		e.RequestID = first(MetadataRequestID, mds...)
	}
	return e
}

func first(key string, mds ...metadata.MD) string {
	for _, md := range mds {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
