package authztest

import (
	"context"
	"net"
	"strings"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ceyewan/authzkit/trace"
	"github.com/ceyewan/authzkit/transport"
	"github.com/ceyewan/authzkit/transport/grpctransport"
	"github.com/ceyewan/authzkit/xerrors"
)

// kindCode 统一错误类型到 gRPC 状态码，与客户端映射表互逆
func kindCode(k xerrors.Kind) codes.Code {
	switch k {
	case xerrors.KindUnauthorized:
		return codes.Unauthenticated
	case xerrors.KindForbidden:
		return codes.PermissionDenied
	case xerrors.KindNotFound:
		return codes.NotFound
	case xerrors.KindInvalidArgument:
		return codes.InvalidArgument
	case xerrors.KindSchemaViolation:
		return codes.FailedPrecondition
	case xerrors.KindRateLimited:
		return codes.ResourceExhausted
	case xerrors.KindUnavailable, xerrors.KindConnection:
		return codes.Unavailable
	case xerrors.KindTimeout:
		return codes.DeadlineExceeded
	case xerrors.KindInternal:
		return codes.Internal
	case xerrors.KindProtocol:
		return codes.Unimplemented
	case xerrors.KindCancelled:
		return codes.Canceled
	default:
		return codes.Unknown
	}
}

func grpcError(err error, reqID string) error {
	kind := xerrors.KindOf(err)
	msg := err.Error()
	var e *xerrors.Error
	if xerrors.As(err, &e) {
		msg = e.Message
	}
	st := status.New(kindCode(kind), msg)
	reqInfo := &errdetails.RequestInfo{RequestId: reqID}
	var (
		detailed *status.Status
		derr     error
	)
	if d, ok := xerrors.RetryAfterOf(err); ok {
		detailed, derr = st.WithDetails(reqInfo, &errdetails.RetryInfo{RetryDelay: durationpb.New(d)})
	} else {
		detailed, derr = st.WithDetails(reqInfo)
	}
	if derr == nil {
		st = detailed
	}
	return st.Err()
}

type grpcService struct {
	backend *Backend
}

func incomingHeaders(ctx context.Context) map[string]string {
	md, _ := metadata.FromIncomingContext(ctx)
	out := make(map[string]string, len(md))
	for k, v := range md {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

func (s *grpcService) call(ctx context.Context, op transport.Operation, in *structpb.Struct) (any, error) {
	body, err := protojson.Marshal(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	res, reqID, err := s.backend.Do(ctx, transport.KindGRPC, op, incomingHeaders(ctx), body)
	_ = grpc.SetHeader(ctx, metadata.Pairs(grpctransport.MetadataRequestID, reqID))
	if err != nil {
		return nil, grpcError(err, reqID)
	}
	return res, nil
}

func (s *grpcService) unary(op transport.Operation) grpc.MethodHandler {
	return func(_ any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
		in := &structpb.Struct{}
		if err := dec(in); err != nil {
			return nil, err
		}
		res, err := s.call(ctx, op, in)
		if err != nil {
			return nil, err
		}
		out, err := grpctransport.ToStruct(res)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		return out, nil
	}
}

func (s *grpcService) stream(op transport.Operation) grpc.StreamHandler {
	return func(_ any, ss grpc.ServerStream) error {
		in := &structpb.Struct{}
		if err := ss.RecvMsg(in); err != nil {
			return err
		}
		res, err := s.call(ss.Context(), op, in)
		if err != nil {
			return err
		}

		var frames []transport.ListFrame
		var next string
		switch v := res.(type) {
		case *transport.ListRelationshipsResponse:
			for i := range v.Items {
				frames = append(frames, transport.ListFrame{Relationship: &v.Items[i]})
			}
			next = v.NextCursor
		case *transport.ListResourcesResponse:
			for i := range v.Items {
				frames = append(frames, transport.ListFrame{Resource: &v.Items[i]})
			}
			next = v.NextCursor
		case *transport.ListSubjectsResponse:
			for i := range v.Items {
				frames = append(frames, transport.ListFrame{Subject: &v.Items[i]})
			}
			next = v.NextCursor
		}
		frames = append(frames, transport.ListFrame{Done: true, NextCursor: next})

		for _, f := range frames {
			msg, err := grpctransport.ToStruct(f)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := ss.SendMsg(msg); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewGRPCServer 创建注册了鉴权服务的 gRPC 服务器
func (b *Backend) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	svc := &grpcService{backend: b}
	srv := grpc.NewServer(append([]grpc.ServerOption{grpc.StatsHandler(trace.GRPCServerStatsHandler())}, opts...)...)
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: grpctransport.ServiceName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Evaluate", Handler: svc.unary(transport.OpCheck)},
			{MethodName: "EvaluateBatch", Handler: svc.unary(transport.OpCheckBatch)},
			{MethodName: "WriteRelationships", Handler: svc.unary(transport.OpWrite)},
			{MethodName: "WriteRelationshipsBatch", Handler: svc.unary(transport.OpWriteBatch)},
			{MethodName: "DeleteRelationships", Handler: svc.unary(transport.OpDelete)},
			{MethodName: "Simulate", Handler: svc.unary(transport.OpSimulate)},
			{MethodName: "Health", Handler: svc.unary(transport.OpHealth)},
		},
		Streams: []grpc.StreamDesc{
			{StreamName: "ListRelationships", Handler: svc.stream(transport.OpListRelationships), ServerStreams: true},
			{StreamName: "ListResources", Handler: svc.stream(transport.OpListResources), ServerStreams: true},
			{StreamName: "ListSubjects", Handler: svc.stream(transport.OpListSubjects), ServerStreams: true},
		},
	}, svc)
	return srv
}

// GRPCHarness 基于 bufconn 的进程内 gRPC 服务
type GRPCHarness struct {
	Target   string
	listener *bufconn.Listener
}

// DialOption 返回连接到内存监听器的拨号选项
func (h *GRPCHarness) DialOption() grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return h.listener.DialContext(ctx)
	})
}

// StartGRPC 在 bufconn 上启动后端，测试结束时自动停止
func StartGRPC(t testing.TB, b *Backend) *GRPCHarness {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := b.NewGRPCServer()
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return &GRPCHarness{Target: "passthrough:///bufnet", listener: lis}
}
